package imagehost

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Host stores images and hands back their public URL.
type Host interface {
	// Upload stores img under a fresh key in the kind folder ("profile",
	// "cover", "post") and returns its public URL.
	Upload(ctx context.Context, kind string, img Image) (string, error)
	// Destroy removes the image behind url. URLs the host does not own are
	// ignored.
	Destroy(ctx context.Context, url string) error
}

func objectKey(kind, ext string, now time.Time) string {
	return fmt.Sprintf("%s/%04d/%02d/%s%s", kind, now.Year(), int(now.Month()), uuid.NewString(), ext)
}

// keyFromURL returns the object key of url under base, or false when url is
// not hosted there.
func keyFromURL(base, url string) (string, bool) {
	prefix := strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	if key == "" || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}
