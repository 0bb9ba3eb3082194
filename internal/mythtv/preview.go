// SPDX-License-Identifier: MIT

package mythtv

import (
	"context"
	"errors"
	"strconv"

	"github.com/ManuGH/myth2dsv/internal/catalog"
)

// FetchThumbnail returns the backend-rendered preview image for rec, scaled
// by the backend to the given height. The bytes are whatever image format
// the backend produced (usually PNG).
func (c *Conn) FetchThumbnail(ctx context.Context, rec catalog.Recording, height int) ([]byte, error) {
	q := recordingQuery(rec)
	if height > 0 {
		q.Set("Height", strconv.Itoa(height))
	}
	body, err := c.get(ctx, "/Content/GetPreviewImage?"+q.Encode(), "preview_image")
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, &Error{Sentinel: ErrQuery, Operation: "preview_image", Err: errors.New("empty image")}
	}
	return body, nil
}
