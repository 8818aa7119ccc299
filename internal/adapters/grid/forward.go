package grid

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/eleven-am/gridboot/internal/domain"
	"github.com/eleven-am/gridboot/internal/xjson"
)

var errMisdirected = errors.New("request reached a node that is not the leader")

// forwarder sends mutations to another node's connector. A 421 carrying a
// leader hint is followed once.
type forwarder struct {
	client *http.Client
	logger *slog.Logger
}

func newForwarder(timeout time.Duration, logger *slog.Logger) *forwarder {
	return &forwarder{
		client: &http.Client{Timeout: timeout},
		logger: logger.With("component", "forwarder"),
	}
}

func (f *forwarder) post(ctx context.Context, target, path string, body, out interface{}) error {
	hint, err := f.postOnce(ctx, target, path, body, out)
	if errors.Is(err, errMisdirected) && hint != "" && hint != target {
		f.logger.Debug("following leader hint", "from", target, "to", hint, "path", path)
		_, err = f.postOnce(ctx, hint, path, body, out)
	}
	if errors.Is(err, errMisdirected) {
		return domain.ErrNoLeader
	}
	return err
}

func (f *forwarder) postOnce(ctx context.Context, target, path string, body, out interface{}) (string, error) {
	payload, err := xjson.Marshal(body)
	if err != nil {
		return "", err
	}

	url := "http://" + target + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", domain.NewNetworkError(
			"failed to reach peer connector",
			err,
			domain.WithComponent("adapters.grid.forwarder"),
			domain.WithContextDetail("target", target),
		)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return "", nil
		}
		return "", xjson.NewDecoder(resp.Body).Decode(out)
	case http.StatusMisdirectedRequest:
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.Header.Get(leaderHeader), errMisdirected
	}

	var remote errorResponse
	_ = xjson.NewDecoder(resp.Body).Decode(&remote)
	message := fmt.Sprintf("peer %s answered %d: %s", target, resp.StatusCode, remote.Error)

	switch resp.StatusCode {
	case http.StatusConflict:
		return "", fmt.Errorf("%s: %w", message, domain.ErrUnknownNode)
	case http.StatusServiceUnavailable:
		return "", fmt.Errorf("%s: %w", message, domain.ErrNoLeader)
	case http.StatusBadRequest:
		return "", domain.NewValidationError(message, nil, domain.WithComponent("adapters.grid.forwarder"))
	default:
		return "", domain.NewNetworkError(message, nil,
			domain.WithComponent("adapters.grid.forwarder"),
			domain.WithRetryable(resp.StatusCode >= 500),
		)
	}
}
