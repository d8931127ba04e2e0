package serve

import (
	"net/http"
	"os"
)

type webAppFS struct {
	root http.Dir
}

// WebApp serves the control panel from dir. Paths that don't match a file
// fall back to index.html so client-side routes resolve.
func WebApp(dir string) http.FileSystem {
	return webAppFS{root: http.Dir(dir)}
}

func (a webAppFS) Open(name string) (http.File, error) {
	if file, err := a.root.Open(name); err == nil {
		return file, nil
	}
	return a.root.Open("index.html")
}

type mediaFS struct {
	root http.Dir
}

// MediaOnly serves finished artifacts from dir without directory listings.
// Enumeration goes through the list endpoint, and working directories such
// as segment scratch space stay unbrowsable.
func MediaOnly(dir string) http.FileSystem {
	return mediaFS{root: http.Dir(dir)}
}

func (m mediaFS) Open(name string) (http.File, error) {
	file, err := m.root.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}
