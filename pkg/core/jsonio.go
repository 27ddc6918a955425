package core

import (
	"encoding/json"
	"errors"
	"io"
)

// ErrMalformedResult is returned by UnmarshalResult for JSON that does not
// carry exactly the part its success flag calls for.
var ErrMalformedResult = errors.New("malformed result")

// MarshalResult pretty-prints a result as JSON for humans or pipelines.
func MarshalResult(w io.Writer, res *ProcessResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// UnmarshalResult decodes result JSON produced by MarshalResult or the
// HTTP service. A successful result must carry a report and no error, a
// failed one an error with a code and no report, and was_malicious must
// agree with replaced_blocks.
func UnmarshalResult(r io.Reader) (*ProcessResult, error) {
	var res ProcessResult
	if err := json.NewDecoder(r).Decode(&res); err != nil {
		return nil, err
	}
	switch {
	case res.Success && (res.Report == nil || res.Error != nil):
		return nil, errors.Join(ErrMalformedResult, errors.New("success needs a report and no error"))
	case !res.Success && (res.Error == nil || res.Report != nil):
		return nil, errors.Join(ErrMalformedResult, errors.New("failure needs an error and no report"))
	case !res.Success && res.Error.Code == "":
		return nil, errors.Join(ErrMalformedResult, errors.New("error without code"))
	case res.Success && res.Report.WasMalicious != (res.Report.ReplacedBlocks > 0):
		return nil, errors.Join(ErrMalformedResult, errors.New("was_malicious disagrees with replaced_blocks"))
	}
	return &res, nil
}
