package handler

import (
	"fmt"
	"net/http"
	"strconv"
)

// statusLine holds the fixed reason phrases sent on the wire.
var statusLine = map[int]string{
	http.StatusOK:                  "200 OK",
	http.StatusBadRequest:          "400 BAD REQUEST",
	http.StatusNotFound:            "404 NOT FOUND",
	http.StatusRequestTimeout:      "408 REQUEST TIMEOUT",
	http.StatusInternalServerError: "500 INTERNAL SERVER ERROR",
}

var errorBody = map[int]string{
	http.StatusBadRequest:          "<html><body><h1>400 Bad Request</h1></body></html>",
	http.StatusNotFound:            "<html><body><h1>404 Not Found</h1></body></html>",
	http.StatusRequestTimeout:      "<html><body><h1>408 Request Timeout</h1></body></html>",
	http.StatusInternalServerError: "<html><body><h1>500 Internal Server Error</h1></body></html>",
}

// okHeader builds the 200 header. size < 0 means the body is chunked.
func okHeader(contentType string, size int64) []byte {
	buf := make([]byte, 0, 128)
	buf = append(buf, "HTTP/1.1 200 OK\r\nContent-Type: "...)
	buf = append(buf, contentType...)
	if size < 0 {
		buf = append(buf, "\r\nTransfer-Encoding: chunked"...)
	} else {
		buf = append(buf, "\r\nContent-Length: "...)
		buf = strconv.AppendInt(buf, size, 10)
	}
	buf = append(buf, "\r\nConnection: close\r\n\r\n"...)
	return buf
}

// errorResponse returns the complete response for a non-200 status.
func errorResponse(status int) []byte {
	body, ok := errorBody[status]
	if !ok {
		status = http.StatusInternalServerError
		body = errorBody[status]
	}

	return fmt.Appendf(nil,
		"HTTP/1.1 %s\r\nContent-Type: text/html\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		statusLine[status], len(body), body)
}
