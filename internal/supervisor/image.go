package supervisor

import (
	"context"
	"fmt"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// preflightImage checks whether image is present in the local Docker image
// cache. When it is not, it makes a best-effort remote existence check
// against the registry so the eventual "Docker image not found" error can
// say whether the image is missing everywhere or just needs a pull -- a
// diagnostic nicety the original Docker-API-only implementation did not
// have. Any error from the remote check is swallowed: it must never block
// container creation, only enrich the error message if creation fails.
func (s *Supervisor) preflightImage(ctx context.Context, imageRef string) string {
	if _, err := s.api.ImageInspect(ctx, imageRef); err == nil {
		return ""
	}

	ref, err := name.ParseReference(imageRef)
	if err != nil {
		return ""
	}
	if _, err := remote.Head(ref, remote.WithContext(ctx)); err != nil {
		return "absent locally and in the remote registry"
	}
	return "absent locally, present in the remote registry (needs a pull)"
}
