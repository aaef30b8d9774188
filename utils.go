package slabq

import (
	"errors"
	"os"
)

// validateStorageDir checks that dirName exists and is a directory. It
// never creates the directory: storage_directory is a required setting,
// not something this package should be silently provisioning.
func validateStorageDir(dirName string) error {
	if dirName == "" {
		return errors.Join(ErrInvalidConfiguration, errors.New("storage directory is required"))
	}
	info, err := os.Stat(dirName)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Join(ErrInvalidConfiguration, errors.New("storage directory does not exist: "+dirName))
		}
		return wrapIOFailure("stat storage directory", err)
	}
	if !info.IsDir() {
		return errors.Join(ErrInvalidConfiguration, errors.New(dirName+" is not a directory"))
	}
	return nil
}
