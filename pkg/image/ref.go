package image

import (
	"strings"
)

// Ref is the human-meaningful identity of a container image reference:
// the repository name and the tag, with any digest stripped. A reference
// carrying only a digest yields an empty Tag.
type Ref struct {
	Name string
	Tag  string
}

// ParseRef splits a container image reference into a Ref.
// Examples:
//   - "nginx:1.21" -> {nginx 1.21}
//   - "nginx@sha256:abc123" -> {nginx }
//   - "registry.example.com/myapp:v1.0" -> {registry.example.com/myapp v1.0}
//   - "localhost:5000/myapp:v1.0" -> {localhost:5000/myapp v1.0}
func ParseRef(image string) Ref {
	if image == "" {
		return Ref{}
	}

	// The digest, if any, follows the first "@".
	if name, _, found := strings.Cut(image, "@"); found {
		image = name
	}

	// A ":" only introduces a tag when it follows the last "/",
	// otherwise it is a registry port ("localhost:5000/myapp").
	colon := strings.LastIndex(image, ":")
	if colon > strings.LastIndex(image, "/") {
		return Ref{Name: image[:colon], Tag: image[colon+1:]}
	}
	return Ref{Name: image}
}

// DigestFromImageID extracts the resolved sha256 digest from a container
// status ImageID, which typically looks like
// "docker-pullable://nginx@sha256:abc123..." or "docker://sha256:abc123...".
// If no digest is present the ImageID is returned unchanged.
func DigestFromImageID(imageID string) string {
	idx := strings.Index(imageID, "sha256:")
	if idx == -1 {
		return imageID
	}

	digest := imageID[idx:]
	if end := strings.IndexAny(digest, "@ "); end != -1 {
		digest = digest[:end]
	}
	return digest
}
