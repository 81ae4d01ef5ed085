// ABOUTME: Company directory that merges stored companies with names found on contacts
// ABOUTME: Virtual companies get stable negative ids derived from their normalised name
package crm

import (
	"hash/fnv"
	"sort"
	"strings"

	"github.com/harperreed/crmdesk/models"
)

// CompanyProfile holds the editable company fields besides the name.
type CompanyProfile struct {
	Size             string `json:"size"`
	Website          string `json:"website"`
	Industry         string `json:"industry"`
	OwnerID          int64  `json:"owner_id"`
	AssignedResource string `json:"assigned_resource"`
}

func (p CompanyProfile) apply(c *models.Company) {
	c.Size = p.Size
	c.Website = p.Website
	c.Industry = p.Industry
	c.AssignedResource = p.AssignedResource
	if p.OwnerID != 0 {
		c.OwnerID = p.OwnerID
	}
}

// CompanyView is one entry of the directory. Virtual entries have a negative id.
type CompanyView struct {
	models.Company
	Virtual  bool             `json:"virtual"`
	Contacts []models.Contact `json:"contacts"`
}

// NormalizeName is the comparison key for company names.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// VirtualCompanyID derives a negative id from a company name. Names that
// normalise the same share an id.
func VirtualCompanyID(name string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(NormalizeName(name)))
	return -int64(h.Sum32()&0x7fffffff) - 1
}

// CompanyDirectory lists stored companies followed by one virtual company per
// contact company name with no stored match. Virtual names keep the spelling
// of the first contact that used them.
func CompanyDirectory(contacts []models.Contact, companies []models.Company) []CompanyView {
	byKey := make(map[string]int, len(companies))
	views := make([]CompanyView, 0, len(companies))
	for _, c := range companies {
		key := NormalizeName(c.Name)
		if _, dup := byKey[key]; !dup {
			byKey[key] = len(views)
		}
		views = append(views, CompanyView{Company: c, Contacts: []models.Contact{}})
	}
	stored := len(views)

	for _, contact := range contacts {
		key := NormalizeName(contact.Company)
		if key == "" {
			continue
		}
		i, ok := byKey[key]
		if !ok {
			name := strings.TrimSpace(contact.Company)
			i = len(views)
			byKey[key] = i
			views = append(views, CompanyView{
				Company: models.Company{
					ID:      VirtualCompanyID(name),
					Name:    name,
					OwnerID: contact.OwnerID,
				},
				Virtual:  true,
				Contacts: []models.Contact{},
			})
		}
		views[i].Contacts = append(views[i].Contacts, contact)
	}

	virtual := views[stored:]
	sort.SliceStable(virtual, func(i, j int) bool {
		return NormalizeName(virtual[i].Name) < NormalizeName(virtual[j].Name)
	})
	return views
}

// FindCompany returns the directory entry with id.
func FindCompany(views []CompanyView, id int64) (CompanyView, bool) {
	for _, v := range views {
		if v.ID == id {
			return v, true
		}
	}
	return CompanyView{}, false
}
