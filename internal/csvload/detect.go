package csvload

import (
	"io"

	"golang.org/x/net/html/charset"
)

const detectSampleSize = 1 << 20

// Detection is the probable encoding of a file. Certain is only set when a
// byte order mark decided it.
type Detection struct {
	Encoding string `json:"encoding"`
	Certain  bool   `json:"certain"`
}

// DetectEncoding inspects up to the first MiB of r.
func DetectEncoding(r io.Reader) (Detection, error) {
	sample, err := io.ReadAll(io.LimitReader(r, detectSampleSize))
	if err != nil {
		return Detection{}, err
	}
	_, name, certain := charset.DetermineEncoding(sample, "text/csv")
	return Detection{Encoding: name, Certain: certain}, nil
}
