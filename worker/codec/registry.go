package codec

import (
	"fmt"
	"sync"

	"mediaCompressor/models"
)

// Selection is the codec pair chosen for one task. Fallback is nil when Primary is
// already the conventional codec.
type Selection struct {
	Primary  Codec
	Fallback Codec
}

// Conventional returns the non-neural codec of the selection.
func (s Selection) Conventional() Codec {
	if s.Fallback != nil {
		return s.Fallback
	}
	return s.Primary
}

type Registry struct {
	mu           sync.RWMutex
	fallback     map[models.MediaKind]Codec
	neural       map[models.MediaKind]Codec
	preferNeural map[models.MediaKind]bool
}

// NewRegistry creates an empty registry. Neural codecs are preferred for images and
// audio unless changed with PreferNeural.
func NewRegistry() *Registry {
	return &Registry{
		fallback: make(map[models.MediaKind]Codec),
		neural:   make(map[models.MediaKind]Codec),
		preferNeural: map[models.MediaKind]bool{
			models.KindImage: true,
			models.KindAudio: true,
			models.KindVideo: false,
		},
	}
}

// Register adds c for every kind it supports. Neural and conventional codecs are kept
// apart; a later registration replaces an earlier one of the same family.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, kind := range models.MediaKinds {
		if !c.Supports(kind) {
			continue
		}
		if c.Neural() {
			r.neural[kind] = c
		} else {
			r.fallback[kind] = c
		}
	}
}

func (r *Registry) PreferNeural(kind models.MediaKind, prefer bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preferNeural[kind] = prefer
}

// HasNeural reports whether a learned codec is available for kind.
func (r *Registry) HasNeural(kind models.MediaKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.neural[kind]
	return ok
}

// Select picks the neural codec when one is registered and either adaptive mode was
// requested or neural is preferred for the kind. The conventional codec is always
// returned as the fallback.
func (r *Registry) Select(kind models.MediaKind, adaptive bool) (Selection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fallback, ok := r.fallback[kind]
	if !ok {
		return Selection{}, fmt.Errorf("%s: %w", kind, ErrNoCodec)
	}

	if neural, ok := r.neural[kind]; ok && (adaptive || r.preferNeural[kind]) {
		return Selection{Primary: neural, Fallback: fallback}, nil
	}
	return Selection{Primary: fallback}, nil
}
