// Package manifest decodes declarative Kubernetes manifests into the
// typed objects the orchestrator knows how to apply.
package manifest

import (
	"bytes"
	"fmt"
	"os"

	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/scheme"
)

// Parse decodes a multi-document YAML payload into typed Kubernetes
// objects, pinning every object to the given namespace. Unknown kinds
// (anything outside the built-in client-go scheme) are a parse error.
func Parse(data []byte, namespace string) ([]runtime.Object, error) {
	decoder := scheme.Codecs.UniversalDeserializer()

	sections := bytes.Split(data, []byte("\n---"))
	objects := make([]runtime.Object, 0, len(sections))

	for _, section := range sections {
		if len(bytes.TrimSpace(section)) == 0 {
			continue
		}

		obj, _, err := decoder.Decode(section, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decode manifest document: %w", err)
		}

		accessor, err := meta.Accessor(obj)
		if err != nil {
			return nil, fmt.Errorf("manifest document has no object metadata: %w", err)
		}
		accessor.SetNamespace(namespace)

		objects = append(objects, obj)
	}

	if len(objects) == 0 {
		return nil, fmt.Errorf("manifest contains no objects")
	}

	return objects, nil
}

// Load reads a manifest file from disk and parses it.
func Load(path, namespace string) ([]runtime.Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return Parse(data, namespace)
}
