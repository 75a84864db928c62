//go:build !gcp

package archive

import (
	"context"
	"fmt"
)

func newGCSStore(context.Context, Config) (Store, error) {
	return nil, fmt.Errorf("archive: gcs support is not compiled in (build with -tags gcp)")
}
