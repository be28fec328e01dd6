package engine

// checkAccess implements the per-command check from §4.2: a frame
// from peer p targeting category c is denied if c demands a higher
// auth level than p has, or requires SN status p (or the local
// instance) doesn't have.
func checkAccess(c *Category, p *PeerInfo, localServiceNode bool) bool {
	if c.Access.MinAuth > p.AuthLevel {
		return false
	}
	if c.Access.RequireRemoteSN && !p.ServiceNode {
		return false
	}
	if c.Access.RequireLocalSN && !localServiceNode {
		return false
	}
	return true
}
