// Loads the fleet inventory, the list of dedicated servers Paddock controls.
// The inventory is owned by an external collaborator; Paddock only reads a
// snapshot of it at boot.

package fleet

import (
	"Paddock/internal/entity"
	"Paddock/internal/errors"
	"encoding/json"
	"os"

	"github.com/asaskevich/govalidator"
)

// LoadInventory reads and validates the JSON fleet inventory at path.
// Every entry must pass its entity validation tags; one bad entry fails the
// whole load since a half-read fleet is worse than no fleet.
func LoadInventory(path string) ([]entity.ServerIdentity, error) {
	raw, rderr := os.ReadFile(path)
	if rderr != nil {
		return nil, errors.New("couldn't read fleet inventory: " + rderr.Error())
	}
	var identities []entity.ServerIdentity
	if umerr := json.Unmarshal(raw, &identities); umerr != nil {
		return nil, errors.New("couldn't parse fleet inventory: " + umerr.Error())
	}
	seen := make(map[string]bool, len(identities))
	for _, identity := range identities {
		if _, valerr := govalidator.ValidateStruct(identity); valerr != nil {
			return nil, errors.New("invalid inventory entry " + identity.ID + ": " + valerr.Error())
		}
		if seen[identity.ID] {
			return nil, errors.New("duplicate inventory entry " + identity.ID)
		}
		seen[identity.ID] = true
	}
	return identities, nil
}
