package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/vk/taskgraph/internal/ctxlog"
	"github.com/vk/taskgraph/internal/fsutil"
)

// ErrConfigNotFound is returned when a required configuration file is missing.
var ErrConfigNotFound = errors.New("configuration not found")

// KindsDir is the directory under the root holding one directory per kind.
const KindsDir = "kinds"

// Load reads the graph configuration and every kind under root.
func Load(ctx context.Context, root string, decoders ...Decoder) (*Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Config loader started.", "root", root, "decoder_count", len(decoders))

	gc, err := LoadGraphConfig(ctx, root, decoders...)
	if err != nil {
		return nil, err
	}

	kindsRoot := filepath.Join(root, KindsDir)
	names, err := fsutil.ListDirs(kindsRoot)
	if err != nil {
		return nil, fmt.Errorf("error listing kinds in %s: %w", kindsRoot, err)
	}

	model := &Model{Root: root, GraphConfig: gc, Kinds: make(map[string]*KindDefinition, len(names))}
	for _, name := range names {
		path := filepath.Join(kindsRoot, name)
		m, file, err := decodeFirst(ctx, path, "kind", decoders)
		if err != nil {
			if errors.Is(err, ErrConfigNotFound) {
				logger.Debug("Skipping directory without a kind file.", "path", path)
				continue
			}
			return nil, err
		}
		kc, err := KindConfigFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("failed to load kind %q from %s: %w", name, file, err)
		}
		model.Kinds[name] = &KindDefinition{Name: name, Path: path, Config: kc}
		logger.Debug("Loaded kind configuration.", "kind", name, "file", file)
	}

	logger.Debug("Config loading complete.", "kinds", len(model.Kinds))
	return model, nil
}

// LoadGraphConfig reads <root>/config.* into a GraphConfig.
func LoadGraphConfig(ctx context.Context, root string, decoders ...Decoder) (*GraphConfig, error) {
	m, file, err := decodeFirst(ctx, root, "config", decoders)
	if err != nil {
		return nil, err
	}
	gc, err := GraphConfigFromMap(root, m)
	if err != nil {
		return nil, fmt.Errorf("failed to load graph config %s: %w", file, err)
	}
	return gc, nil
}

// LoadParameters reads a parameters file. An empty path yields
// DefaultParameters.
func LoadParameters(ctx context.Context, path string, decoders ...Decoder) (*Parameters, error) {
	if path == "" {
		return DefaultParameters(), nil
	}
	dec, err := decoderFor(path, decoders)
	if err != nil {
		return nil, err
	}
	m, err := dec.DecodeFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode parameters %s: %w", path, err)
	}
	p, err := ParametersFromMap(m)
	if err != nil {
		return nil, fmt.Errorf("failed to load parameters %s: %w", path, err)
	}
	return p, nil
}

// decodeFirst decodes dir/base.<ext> for the first decoder extension found.
func decodeFirst(ctx context.Context, dir, base string, decoders []Decoder) (map[string]any, string, error) {
	for _, dec := range decoders {
		file, ok, err := fsutil.FindFirst(dir, base, dec.Extensions()...)
		if err != nil {
			return nil, "", fmt.Errorf("error accessing %s: %w", dir, err)
		}
		if !ok {
			continue
		}
		m, err := dec.DecodeFile(ctx, file)
		if err != nil {
			return nil, "", fmt.Errorf("failed to decode %s: %w", file, err)
		}
		if m == nil {
			m = map[string]any{}
		}
		return m, file, nil
	}
	return nil, "", fmt.Errorf("%w: no %s file in %s", ErrConfigNotFound, base, dir)
}

func decoderFor(path string, decoders []Decoder) (Decoder, error) {
	ext := filepath.Ext(path)
	for _, dec := range decoders {
		for _, e := range dec.Extensions() {
			if e == ext {
				return dec, nil
			}
		}
	}
	return nil, fmt.Errorf("no decoder for %q files (%s)", ext, path)
}
