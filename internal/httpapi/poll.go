package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/qbd-sync-gateway/internal/qbdpoll"
)

type qbwcPollRequestBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type qbwcPollRequestResponse struct {
	HasWork bool    `json:"has_work"`
	XML     *string `json:"xml"`
}

// handlePollRequest implements POST /poll/v1/qbwc (sendRequestXML).
func (s *Server) handlePollRequest(w http.ResponseWriter, r *http.Request) {
	var body qbwcPollRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := s.Poll.HandleRequest(r.Context(), body.Username, body.Password)
	if err != nil {
		writePollError(w, r, err)
		return
	}

	resp := qbwcPollRequestResponse{HasWork: out.HasWork}
	if out.HasWork {
		resp.XML = &out.XML
	}
	writeJSON(w, http.StatusOK, resp)
}

type qbwcPollReceiveBody struct {
	Username       string  `json:"username"`
	Password       string  `json:"password"`
	QBDResponseXML *string `json:"qbd_response_xml"`
	QBDError       *string `json:"qbd_error"`
}

type qbwcPollReceiveResponse struct {
	Success bool    `json:"success"`
	HasMore bool    `json:"has_more"`
	Message *string `json:"message,omitempty"`
}

// handlePollReceive implements POST /poll/v1/qbwc/receive (receiveResponseXML).
func (s *Server) handlePollReceive(w http.ResponseWriter, r *http.Request) {
	var body qbwcPollReceiveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	in := qbdpoll.ResponseInput{}
	if body.QBDResponseXML != nil {
		in.ResponseXML = *body.QBDResponseXML
	}
	if body.QBDError != nil {
		in.QBDError = *body.QBDError
	}

	out, err := s.Poll.HandleResponse(r.Context(), body.Username, body.Password, in)
	if err != nil {
		var parseErr *qbdpoll.ParseError
		if errors.As(err, &parseErr) {
			msg := parseErr.Error()
			writeJSON(w, http.StatusUnprocessableEntity, qbwcPollReceiveResponse{
				Success: false,
				HasMore: false,
				Message: &msg,
			})
			return
		}
		if errors.Is(err, qbdpoll.ErrUnauthorized) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		log.Error().Err(err).Msg("poll receive failed")
		msg := "database error: " + err.Error()
		writeJSON(w, http.StatusInternalServerError, qbwcPollReceiveResponse{
			Success: false,
			HasMore: false,
			Message: &msg,
		})
		return
	}

	writeJSON(w, http.StatusOK, qbwcPollReceiveResponse{Success: true, HasMore: out.HasMore})
}

func writePollError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, qbdpoll.ErrUnauthorized) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	var parseErr *qbdpoll.ParseError
	if errors.As(err, &parseErr) {
		writeError(w, r, http.StatusUnprocessableEntity, parseErr.Error())
		return
	}
	log.Error().Err(err).Msg("poll request failed")
	writeError(w, r, http.StatusInternalServerError, "database error: "+err.Error())
}
