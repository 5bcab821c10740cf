package tagmanager

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema/container.schema.json
var containerSchemaJSON string

const containerSchemaURL = "container.schema.json"

var containerSchema = jsonschema.MustCompileString(containerSchemaURL, containerSchemaJSON)

// ErrInvalidContainer is returned when a container document fails validation.
var ErrInvalidContainer = errors.New("invalid container")

// AnyEvent is the trigger that matches every event.
const AnyEvent = "*"

// Tag fires a hit whenever one of its triggers matches a pushed event.
type Tag struct {
	Name     string   `json:"name" yaml:"name"`
	Type     string   `json:"type,omitempty" yaml:"type,omitempty"`
	Triggers []string `json:"triggers" yaml:"triggers"`
}

// Matches reports whether the tag fires for event.
func (t Tag) Matches(event string) bool {
	for _, tr := range t.Triggers {
		if tr == AnyEvent || tr == event {
			return true
		}
	}
	return false
}

// Container is one published version of a tag configuration.
type Container struct {
	ID      string `json:"id" yaml:"id"`
	Version string `json:"version" yaml:"version"`
	Tags    []Tag  `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Default marks the bundled fallback shipped with the app.
	Default bool `json:"-" yaml:"-"`
	// FetchedAt is when the container was last retrieved from the network.
	FetchedAt time.Time `json:"-" yaml:"-"`
}

// TagsFor returns the tags that fire for event.
func (c *Container) TagsFor(event string) []Tag {
	if c == nil {
		return nil
	}
	var out []Tag
	for _, t := range c.Tags {
		if t.Matches(event) {
			out = append(out, t)
		}
	}
	return out
}

// ParseContainerJSON decodes and validates a JSON container document.
func ParseContainerJSON(data []byte) (*Container, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContainer, err)
	}
	if err := containerSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContainer, err)
	}

	var c Container
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContainer, err)
	}
	return &c, nil
}

// ParseContainerYAML decodes a YAML container document and validates it
// against the same schema as the JSON form.
func ParseContainerYAML(data []byte) (*Container, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContainer, err)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContainer, err)
	}
	return ParseContainerJSON(b)
}

// ParseContainer picks the decoder from a file name extension.
func ParseContainer(name string, data []byte) (*Container, error) {
	switch {
	case strings.HasSuffix(name, ".yaml"), strings.HasSuffix(name, ".yml"):
		return ParseContainerYAML(data)
	case strings.HasSuffix(name, ".json"):
		return ParseContainerJSON(data)
	default:
		return nil, fmt.Errorf("unsupported container file %q: use .json, .yaml, or .yml", name)
	}
}

// Source records where a loaded container came from.
type Source string

const (
	SourceCache      Source = "cache"
	SourceNetwork    Source = "network"
	SourceStaleCache Source = "stale_cache"
	SourceDefault    Source = "default"
)

// ContainerHolder is the handle returned by a completed load.
type ContainerHolder struct {
	container *Container
	source    Source
}

// NewContainerHolder wraps c with its origin.
func NewContainerHolder(c *Container, src Source) *ContainerHolder {
	return &ContainerHolder{container: c, source: src}
}

// Container returns the loaded container.
func (h *ContainerHolder) Container() *Container {
	if h == nil {
		return nil
	}
	return h.container
}

// Source returns where the container was resolved from.
func (h *ContainerHolder) Source() Source {
	if h == nil {
		return ""
	}
	return h.source
}
