package pathutil

import (
	"io/ioutil"
	"os"
	"path"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

// HomeDir obtains the path to the user's home directory.
func HomeDir() string {
	dir, err := homedir.Dir()
	if err != nil {
		log.WithError(err).Warn("Failed to obtain home dir")
		return ""
	}
	return dir
}

// PeerDir returns the directory used to store raknet peer data. Such dir is ~/.raknet
func PeerDir() string {
	return filepath.Join(HomeDir(), ".raknet")
}

// EnsureDir creates the given directory if it does not exist and returns its absolute path.
func EnsureDir(dir string) (string, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		if err := os.MkdirAll(absPath, 0750); err != nil {
			return "", err
		}
	}
	return absPath, nil
}

// AtomicWriteFile creates a temp file in which to write data, then renames it over filename.
// On failure the temp file is removed.
func AtomicWriteFile(filename string, data []byte) error {
	dir, name := path.Split(filename)
	if dir == "" {
		dir = "."
	}
	f, err := ioutil.TempFile(dir, name)
	if err != nil {
		return err
	}

	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if permErr := os.Chmod(f.Name(), 0600); err == nil {
		err = permErr
	}
	if err == nil {
		err = os.Rename(f.Name(), filename)
	}

	if err != nil {
		if rmErr := os.Remove(f.Name()); rmErr != nil {
			log.WithError(rmErr).Warnf("Failed to remove file %s", f.Name())
		}
		return err
	}
	return nil
}
