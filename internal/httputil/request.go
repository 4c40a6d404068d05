package httputil

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/RidiculousBuffal/TCSA/internal/errorutil"
)

// GetIntQueryParameters reads the specified integer query parameters. Missing
// or blank parameters keep their value in params. The returned logger carries
// every parameter read.
func GetIntQueryParameters(q url.Values, params map[string]*int) (zerolog.Logger, error) {
	logger := log.With()
	for key, value := range params {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("%w: %s query parameter should be an integer, got %q", errorutil.ErrInvalidConfig, key, raw)
		}
		*value = v
		logger = logger.Int(key, v)
	}
	return logger.Logger(), nil
}
