package assets

import _ "embed"

//go:embed signing.html
var SigningHTML []byte

//go:embed connect.html
var ConnectHTML []byte

//go:embed error.html
var ErrorHTML []byte
