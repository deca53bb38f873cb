package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// parseContentRange parses a PATCH request's Content-Range header
// ("<start>-<end>") into start/end byte offsets.
func parseContentRange(header string) (start, end int64, err error) {
	if header == "" {
		return 0, 0, fmt.Errorf("missing Content-Range")
	}

	parts := strings.SplitN(header, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed Content-Range %q", header)
	}

	start, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed Content-Range start: %w", err)
	}
	end, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed Content-Range end: %w", err)
	}
	return start, end, nil
}

// acceptedMediaTypes returns the set of media types in r's Accept headers.
// An empty set means the caller didn't restrict Accept, and every media
// type should be considered acceptable.
func acceptedMediaTypes(r *http.Request) map[string]bool {
	accept := make(map[string]bool)
	for _, header := range r.Header["Accept"] {
		for _, mediaType := range strings.Split(header, ",") {
			mediaType = strings.TrimSpace(strings.SplitN(mediaType, ";", 2)[0])
			if mediaType != "" {
				accept[mediaType] = true
			}
		}
	}
	return accept
}

func setRangeHeader(w http.ResponseWriter, start, end int64) {
	w.Header().Set("Range", fmt.Sprintf("%d-%d", start, end))
}
