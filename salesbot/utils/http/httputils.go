// salesbot/utils/http/httputils.go
package httputils

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

var client = resty.New().SetTimeout(2 * time.Minute)

// PostJSON sends body as JSON and decodes a 200 response into resp.
func PostJSON(ctx context.Context, url string, body interface{}, resp interface{}) error {
	req := client.R().SetContext(ctx).SetBody(body)
	if resp != nil {
		req.SetResult(resp)
	}
	r, err := req.Post(url)
	if err != nil {
		return err
	}
	if r.StatusCode() != http.StatusOK {
		return fmt.Errorf("bad status: %d", r.StatusCode())
	}
	return nil
}
