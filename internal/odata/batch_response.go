package odata

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
)

// ErrNotMultipart is returned when a batch response is not multipart/mixed.
var ErrNotMultipart = errors.New("odata: batch response is not multipart/mixed")

// BatchPartResponse is one HTTP response embedded in a $batch reply.
type BatchPartResponse struct {
	ContentID  string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ParseBatchResponse splits a multipart/mixed $batch response into its
// embedded responses, descending into changesets. Order follows the payload.
func ParseBatchResponse(contentType string, body []byte) ([]BatchPartResponse, error) {
	var parts []BatchPartResponse
	if err := parseMultipart(contentType, bytes.NewReader(body), &parts); err != nil {
		return nil, err
	}

	return parts, nil
}

func parseMultipart(contentType string, r io.Reader, out *[]BatchPartResponse) error {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("odata: parsing content type %q: %w", contentType, err)
	}

	if !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return fmt.Errorf("%w: %s", ErrNotMultipart, mediaType)
	}

	mr := multipart.NewReader(r, params["boundary"])

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("odata: reading batch part: %w", err)
		}

		partType := part.Header.Get("Content-Type")

		if strings.HasPrefix(partType, "multipart/") {
			if err := parseMultipart(partType, part, out); err != nil {
				return err
			}

			continue
		}

		resp, err := readEmbeddedResponse(part)
		if err != nil {
			return err
		}

		resp.ContentID = part.Header.Get("Content-ID")
		*out = append(*out, resp)
	}
}

func readEmbeddedResponse(part *multipart.Part) (BatchPartResponse, error) {
	resp, err := http.ReadResponse(bufio.NewReader(part), nil)
	if err != nil {
		return BatchPartResponse{}, fmt.Errorf("odata: reading embedded response: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return BatchPartResponse{}, fmt.Errorf("odata: reading embedded response body: %w", err)
	}

	return BatchPartResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       bytes.TrimRight(data, "\r\n"),
	}, nil
}
