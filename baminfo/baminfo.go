// Package baminfo provides the cheap sanity checks samwrap runs against BAM
// inputs and BAI indexes before and after driving samtools.  It never decodes
// alignment records beyond the header; the heavy lifting stays delegated.
package baminfo

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

var baiMagic = [4]byte{'B', 'A', 'I', 0x1}

// ReadHeader opens a local BAM file and decodes just its header.  A file that
// is truncated, not BGZF-compressed, or not a BAM at all fails here, which is
// how a batch run rejects a bad input before spawning any samtools child.
func ReadHeader(path string) (*sam.Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint: errcheck
	r, err := bam.NewReader(f, 1)
	if err != nil {
		return nil, errors.E(err, fmt.Sprintf("%s: cannot read BAM header", path))
	}
	h := r.Header()
	if err := r.Close(); err != nil {
		return nil, err
	}
	return h, nil
}

// IndexPath returns the index path `samtools index` produces for bamPath.
func IndexPath(bamPath string) string {
	return bamPath + ".bai"
}

// IndexIsStale reports whether bamPath lacks a .bai, or has one older than
// the BAM itself.
func IndexIsStale(bamPath string) (bool, error) {
	bamStat, err := os.Stat(bamPath)
	if err != nil {
		return false, err
	}
	baiStat, err := os.Stat(IndexPath(bamPath))
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	return baiStat.ModTime().Before(bamStat.ModTime()), nil
}

// CheckIndex validates the leading portion of a BAI file: the magic bytes,
// and, when header is non-nil, that the index covers the same number of
// reference sequences the BAM header declares.  The bin/chunk payload is
// samtools territory and is not inspected.
func CheckIndex(baiPath string, header *sam.Header) error {
	f, err := os.Open(baiPath)
	if err != nil {
		return err
	}
	defer f.Close() // nolint: errcheck

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return errors.E(err, fmt.Sprintf("%s: cannot read BAI magic", baiPath))
	}
	if magic != baiMagic {
		return fmt.Errorf("%s: invalid BAI magic %v", baiPath, magic)
	}
	var refCount int32
	if err := binary.Read(f, binary.LittleEndian, &refCount); err != nil {
		return errors.E(err, fmt.Sprintf("%s: cannot read BAI reference count", baiPath))
	}
	if refCount < 0 {
		return fmt.Errorf("%s: negative BAI reference count %d", baiPath, refCount)
	}
	if header != nil && int(refCount) != len(header.Refs()) {
		return fmt.Errorf("%s: index covers %d reference(s), BAM header declares %d",
			baiPath, refCount, len(header.Refs()))
	}
	return nil
}
