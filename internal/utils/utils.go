package utils

// PointerOf returns a pointer to v. Useful for optional struct fields.
func PointerOf[T any](v T) *T {
	return &v
}
