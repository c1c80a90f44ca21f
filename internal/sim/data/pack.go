// Package data serves a world data pack from disk. Every loader memoizes by
// id: the first caller for an id does the read, concurrent callers wait for
// it, and the result (or error) is shared from then on.
//
// Layout under the pack root:
//
//	dimensions/<id>.yaml
//	regions/<id>.yaml
//	biomes/<id>.yaml
//	objects/<id>.json | objects/<id>.json.zst
//	images/<id>.png | .jpg | .jpeg | .gif | .bmp | .tiff | .webp
package data

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"voxelparallax.ai/internal/sim/dimension"
	"voxelparallax.ai/internal/sim/imagemap"
	"voxelparallax.ai/internal/sim/object"
)

var ErrNotFound = errors.New("data: not found")

// Provider is what generation needs from a data pack.
type Provider interface {
	ImageLoader() imagemap.Loader
	ObjectLoader() object.Loader
	RegionLoader() dimension.RegionLoader
	BiomeLoader() dimension.BiomeLoader
	DimensionLoader() dimension.DimensionLoader
}

type Pack struct {
	root string

	images     *ImageLoader
	objects    *ObjectLoader
	regions    *yamlLoader[dimension.Region]
	biomes     *yamlLoader[dimension.Biome]
	dimensions *yamlLoader[dimension.Dimension]
}

func Open(root string) (*Pack, error) {
	st, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("open pack: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("open pack: %s is not a directory", root)
	}
	return &Pack{
		root:       root,
		images:     &ImageLoader{dir: filepath.Join(root, "images")},
		objects:    &ObjectLoader{dir: filepath.Join(root, "objects")},
		regions:    &yamlLoader[dimension.Region]{dir: filepath.Join(root, "regions"), decode: dimension.DecodeRegion},
		biomes:     &yamlLoader[dimension.Biome]{dir: filepath.Join(root, "biomes"), decode: dimension.DecodeBiome},
		dimensions: &yamlLoader[dimension.Dimension]{dir: filepath.Join(root, "dimensions"), decode: dimension.DecodeDimension},
	}, nil
}

func (p *Pack) Root() string { return p.root }

// Reset forgets every memoized document, object and image so the next load
// of an id reads the pack again. Values already handed out stay valid.
func (p *Pack) Reset() {
	p.images.cache.reset()
	p.objects.cache.reset()
	p.regions.cache.reset()
	p.biomes.cache.reset()
	p.dimensions.cache.reset()
}

func (p *Pack) ImageLoader() imagemap.Loader               { return p.images }
func (p *Pack) ObjectLoader() object.Loader                { return p.objects }
func (p *Pack) RegionLoader() dimension.RegionLoader       { return p.regions }
func (p *Pack) BiomeLoader() dimension.BiomeLoader         { return p.biomes }
func (p *Pack) DimensionLoader() dimension.DimensionLoader { return p.dimensions }

// Digest hashes every dimension, region and biome document in name order,
// so two servers can tell whether they generate from the same pack.
func (p *Pack) Digest() (string, error) {
	h := sha256.New()
	for _, sub := range []string{"dimensions", "regions", "biomes"} {
		dir := filepath.Join(p.root, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", err
		}
		var files []string
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".yaml") {
				files = append(files, e.Name())
			}
		}
		sort.Strings(files)
		for _, name := range files {
			b, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				return "", err
			}
			h.Write([]byte(sub + "/" + name + "\n"))
			h.Write(b)
			h.Write([]byte{'\n'})
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// cell holds one memoized load.
type cell[T any] struct {
	once sync.Once
	v    T
	err  error
}

type memo[T any] struct {
	m sync.Map // id -> *cell[T]
}

func (c *memo[T]) get(id string, load func(string) (T, error)) (T, error) {
	v, _ := c.m.LoadOrStore(id, &cell[T]{})
	cl := v.(*cell[T])
	cl.once.Do(func() { cl.v, cl.err = load(id) })
	return cl.v, cl.err
}

func (c *memo[T]) reset() {
	c.m.Range(func(k, _ any) bool {
		c.m.Delete(k)
		return true
	})
}

// resolve maps an id to a path under dir, trying each extension in order.
func resolve(dir, id string, exts ...string) (string, error) {
	if id == "" || !filepath.IsLocal(id) {
		return "", fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
	}
	base := filepath.Join(dir, filepath.FromSlash(id))
	for _, ext := range exts {
		if st, err := os.Stat(base + ext); err == nil && !st.IsDir() {
			return base + ext, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, id)
}

var imageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tiff", ".webp"}

type ImageLoader struct {
	dir   string
	cache memo[*imagemap.Image]
}

func (l *ImageLoader) Load(id string) (*imagemap.Image, error) {
	return l.cache.get(id, func(id string) (*imagemap.Image, error) {
		path, err := resolve(l.dir, id, imageExts...)
		if err != nil {
			return nil, fmt.Errorf("image: %w", err)
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		img, err := imagemap.Decode(f)
		if err != nil {
			return nil, fmt.Errorf("image %s: %w", id, err)
		}
		return img, nil
	})
}

type ObjectLoader struct {
	dir   string
	cache memo[*object.Object]
}

func (l *ObjectLoader) FindFile(id string) (string, error) {
	path, err := resolve(l.dir, id, ".json", ".json.zst")
	if err != nil {
		return "", fmt.Errorf("object: %w", err)
	}
	return path, nil
}

func (l *ObjectLoader) Load(id string) (*object.Object, error) {
	return l.cache.get(id, func(id string) (*object.Object, error) {
		path, err := l.FindFile(id)
		if err != nil {
			return nil, err
		}
		o, err := object.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if o.ID == "" {
			o.ID = id
		}
		return o, nil
	})
}

type yamlLoader[T any] struct {
	dir    string
	decode func(id string, raw []byte) (*T, error)
	cache  memo[*T]
}

func (l *yamlLoader[T]) Load(id string) (*T, error) {
	return l.cache.get(id, func(id string) (*T, error) {
		path, err := resolve(l.dir, id, ".yaml", ".yml")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(l.dir), err)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return l.decode(id, raw)
	})
}
