package utils

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
)

func CheckAndMkdir(dir string) error {
	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if err1 := os.MkdirAll(dir, 0755); err1 != nil {
				return err1
			}
			stat, _ = os.Stat(dir)
		} else {
			return err
		}
	}
	if !stat.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

// Checksum is the hex MD5 digest used for every stored file.
func Checksum(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
