package cipher

// Zero overwrites b with zeros.
func Zero(b []byte) {
	clear(b)
}
