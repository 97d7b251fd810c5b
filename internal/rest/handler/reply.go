package handler

import (
	"net/http"

	"github.com/bytedance/sonic"
)

// Reply is a complete HTTP reply independent of the transport that sends it.
type Reply struct {
	Status int
	Header http.Header
	Body   []byte
}

// newReply creates a reply carrying the CORS headers sent on every response.
func newReply(status int) *Reply {
	header := make(http.Header)
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Methods", http.MethodGet)

	return &Reply{Status: status, Header: header}
}

// jsonReply encodes v as the body of a reply.
func jsonReply(status int, v any) (*Reply, error) {
	body, err := sonic.Marshal(v)
	if err != nil {
		return nil, err
	}

	reply := newReply(status)
	reply.Header.Set("Content-Type", "application/json; charset=utf-8")
	reply.Body = body

	return reply, nil
}

// Write sends the reply.
func (r *Reply) Write(w http.ResponseWriter) error {
	header := w.Header()
	for k, v := range r.Header {
		header[k] = v
	}

	w.WriteHeader(r.Status)

	if len(r.Body) == 0 {
		return nil
	}

	_, err := w.Write(r.Body)
	return err
}
