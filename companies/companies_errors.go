package companies

import "errors"

var (
	NoCompanySelectedErr = errors.New("no company selected")
	UnknownCompanyErr    = errors.New("company is not in the available list")
)
