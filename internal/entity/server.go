// Structure of the dedicated-server identity Model in Paddock.

package entity

import "strconv"

// ServerIdentity describes one remote dedicated server in the fleet.
// Supplied by the server inventory, immutable for the lifetime of a connection.
// Saved in DB keys as fleet:<this.ID>:*
type ServerIdentity struct {
	ID       string `json:"server_id" valid:"required,type(string),printableascii,nospace,stringlength(1|64)"`
	Host     string `json:"server_host" valid:"required,host"`
	Port     int    `json:"server_port" valid:"required,range(1|65535)"`
	Login    string `json:"server_login" valid:"required,type(string)"`
	Password string `json:"server_password,omitempty" valid:"required,type(string)"`
}

// Addr returns the host:port dial target of the server's control socket.
func (s ServerIdentity) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}
