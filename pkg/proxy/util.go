package proxy

// optionalString converts the router's empty-string-means-none
// convention into the nil-means-none pointer convention used by the
// plugin and capture packages.
func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
