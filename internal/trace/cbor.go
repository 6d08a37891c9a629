package trace

import (
	"fmt"
	"io"

	"codeberg.org/mutker/ridelogger/internal/errors"
	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create trace CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create trace CBOR decoder mode: %v", err))
	}
}

// Encode encodes one record.
func Encode(r Record) ([]byte, error) {
	return encMode.Marshal(r)
}

// ReadAll decodes records from r until EOF. On a malformed record it
// returns the records decoded so far.
func ReadAll(r io.Reader) ([]Record, error) {
	dec := decMode.NewDecoder(r)

	var records []Record
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return records, errors.New().Wrap(ErrDecode, err)
		}
		records = append(records, rec)
	}
}
