package near

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"nearfs.io/upload/cidutil"
	"nearfs.io/upload/model"
	"nearfs.io/upload/storage"
)

// DefaultGatewayTimeout bounds one existence check.
const DefaultGatewayTimeout = 2500 * time.Millisecond

// Gateway checks block existence with HEAD <URL>/ipfs/<cid>.
type Gateway struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

var _ storage.Checker = (*Gateway)(nil)

// NewGateway returns a checker for url. A nil client means http.DefaultClient
// and a zero timeout means DefaultGatewayTimeout.
func NewGateway(url string, client *http.Client, timeout time.Duration) *Gateway {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultGatewayTimeout
	}
	return &Gateway{URL: strings.TrimRight(url, "/"), Client: client, Timeout: timeout}
}

// Has maps 200 to true and 404 to false. Anything else is a Network error.
func (g *Gateway) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	url := g.URL + "/ipfs/" + cidutil.String(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, model.WrapError(model.KindConfiguration, err, "gateway %s", g.URL)
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return false, model.WrapError(model.KindNetwork, err, "HEAD %s", url).WithCIDs(id)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, model.NewError(model.KindNetwork, "HEAD %s: HTTP %d", url, resp.StatusCode).WithCIDs(id)
	}
}
