package treesync

// AuthWithCredential authenticates the connection with a credential
// token. complete runs with the server's auth payload or an error;
// cancel runs if an established authentication is later revoked. The
// credential is replayed automatically after a reconnect.
func (c *Client) AuthWithCredential(credential string, complete func(data map[string]any, err error), cancel func(err error)) {
	c.repo.Auth(credential, complete, cancel)
}

// Unauth drops the connection's authentication.
func (c *Client) Unauth() {
	c.repo.Unauth()
}
