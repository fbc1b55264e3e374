package filters

import (
	"fmt"
	"path"
	"strings"

	"github.com/utxob/Data-Recover-toll/signatures"
	"github.com/utxob/Data-Recover-toll/utils"
)

// Subject is anything a recovery can be decided on, a carved candidate or a deleted record.
type Subject interface {
	GetFname() string
	GetTypeTag() string
	GetLogicalFileSize() int64
	GetDepth() int
}

// Config is the filter configuration applied to both recovery modes. Empty fields
// accept everything, MaxSize 0 is unbounded.
type Config struct {
	Extensions    []string `yaml:"extensions,omitempty"`
	NameSubstring string   `yaml:"name,omitempty"`
	MaxSize       int64    `yaml:"max_size"`
	Recursive     bool     `yaml:"recursive"`
}

type Filter interface {
	Accept(Subject) (bool, string)
}

type ExtensionsFilter struct {
	Extensions []string
	Tags       []string
}

// Accept matches the type tag first, the extension of the name second.
func (extensionsFilter ExtensionsFilter) Accept(subject Subject) (bool, string) {
	if tag := subject.GetTypeTag(); tag != "" {
		for _, wanted := range extensionsFilter.Tags {
			if wanted == tag {
				return true, ""
			}
		}
	}
	ext := signatures.NormalizeExtension(path.Ext(subject.GetFname()))
	for _, wanted := range extensionsFilter.Extensions {
		if wanted == ext {
			return true, ""
		}
	}
	return false, fmt.Sprintf("extension %q not selected", ext)
}

type NameFilter struct {
	Substring string
}

func (nameFilter NameFilter) Accept(subject Subject) (bool, string) {
	if strings.Contains(strings.ToLower(subject.GetFname()), strings.ToLower(nameFilter.Substring)) {
		return true, ""
	}
	return false, fmt.Sprintf("name does not contain %q", nameFilter.Substring)
}

type SizeFilter struct {
	MaxSize int64
}

func (sizeFilter SizeFilter) Accept(subject Subject) (bool, string) {
	if size := subject.GetLogicalFileSize(); size > sizeFilter.MaxSize {
		return false, fmt.Sprintf("size %d exceeds %d", size, sizeFilter.MaxSize)
	}
	return true, ""
}

// DepthFilter keeps top level entries when subdirectories are excluded.
type DepthFilter struct {
	Recursive bool
}

func (depthFilter DepthFilter) Accept(subject Subject) (bool, string) {
	if !depthFilter.Recursive && subject.GetDepth() > 0 {
		return false, fmt.Sprintf("in a subdirectory at depth %d", subject.GetDepth())
	}
	return true, ""
}

type Decision struct {
	Accepted bool
	Reason   string
}

type FilterManager struct {
	filters []Filter
}

func (config Config) NormalizedExtensions() []string {
	var exts []string
	for _, ext := range config.Extensions {
		if ext = signatures.NormalizeExtension(ext); ext != "" {
			exts = append(exts, ext)
		}
	}
	return exts
}

// NewFilterManager registers a filter for every non empty field of config. The registry
// maps extensions to type tags, it may be nil.
func NewFilterManager(config Config, registry *signatures.Registry) *FilterManager {
	filterManager := new(FilterManager)
	if exts := config.NormalizedExtensions(); len(exts) > 0 {
		var tags []string
		if registry != nil {
			tags = registry.TagsForExtensions(exts)
		}
		filterManager.Register(ExtensionsFilter{Extensions: exts, Tags: tags})
	}
	if config.NameSubstring != "" {
		filterManager.Register(NameFilter{Substring: config.NameSubstring})
	}
	if config.MaxSize > 0 {
		filterManager.Register(SizeFilter{MaxSize: config.MaxSize})
	}
	filterManager.Register(DepthFilter{Recursive: config.Recursive})
	return filterManager
}

func (filterManager *FilterManager) Register(filter Filter) {
	filterManager.filters = append(filterManager.filters, filter)
}

// Evaluate reports the reason of the first rejecting filter.
func (filterManager FilterManager) Evaluate(subject Subject) Decision {
	for _, filter := range filterManager.filters {
		if ok, reason := filter.Accept(subject); !ok {
			return Decision{Reason: reason}
		}
	}
	return Decision{Accepted: true}
}

func (filterManager FilterManager) Execute(subjects []Subject) []Subject {
	return utils.Filter(subjects, func(subject Subject) bool {
		return filterManager.Evaluate(subject).Accepted
	})
}
