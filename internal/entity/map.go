// Structures of the Map and Jukebox Models in Paddock.

package entity

// ActiveMapRecord is the map currently loaded on a server, joined with
// metadata resolved from the external map-metadata API.
// Saved in DB as fleet:<server_id>:map
type ActiveMapRecord struct {
	UID         string `json:"map_uid" redis:"map_uid"`
	FileName    string `json:"map_filename" redis:"map_filename"`
	Name        string `json:"map_name" redis:"map_name"`
	Author      string `json:"map_author" redis:"map_author"`
	AuthorTime  int    `json:"author_time" redis:"author_time"`
	GoldTime    int    `json:"gold_time" redis:"gold_time"`
	Thumbnail   string `json:"thumbnail_url,omitempty" redis:"thumbnail_url"`
	DownloadURL string `json:"download_url,omitempty" redis:"download_url"`
}

// JukeboxEntry is one queued map awaiting play. Entries form a FIFO list per
// server; the head is popped when the server asks for the next map.
// Saved in DB as items of the list fleet:<server_id>:jukebox
type JukeboxEntry struct {
	MapUID   string `json:"map_uid" valid:"required,type(string),printableascii,nospace"`
	FileName string `json:"map_filename" valid:"required,type(string),mapfile"`
	QueuedBy string `json:"queued_by,omitempty" valid:"-"`
}
