package server

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"runtime"

	"github.com/netdata/assets/pipeline/asset"

	"golang.org/x/sync/errgroup"
)

// Compile writes every reference below dest, once under its plain path and
// once under its signed path, each with a gzip sibling:
//
//	<dest>/<type>/<name>.<ext>[.gz]
//	<dest>/<type>/<signature>/<name>.<ext>[.gz]
//
// References are written in parallel. The first error cancels the rest.
func Compile(ctx context.Context, refs []*asset.Reference, dest string, data interface{}) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			return compileReference(ref, dest, data)
		})
	}
	return g.Wait()
}

func compileReference(ref *asset.Reference, dest string, data interface{}) error {
	signature, err := ref.Signature(data)
	if err != nil {
		return err
	}
	content, err := ref.Content(data)
	if err != nil {
		return err
	}

	for _, sig := range []string{"", signature} {
		name := filepath.Join(dest, filepath.FromSlash(AssetPath("", ref.Type(), sig, ref.Name())))
		if err := writeFile(name, []byte(content)); err != nil {
			return err
		}
		if err := writeGzip(name+".gz", []byte(content)); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(name string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return err
	}
	return os.WriteFile(name, content, 0644)
}

func writeGzip(name string, content []byte) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()

	zw, err := gzip.NewWriterLevel(f, gzip.BestCompression)
	if err != nil {
		return err
	}
	if _, err := zw.Write(content); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}
