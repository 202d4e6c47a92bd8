package main

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/masivos/admin-gateway/internal/apiclient"
	"github.com/masivos/admin-gateway/internal/pkg/httputil"
)

// stub is an in-memory stand-in for the backend gateway. Contacts, lists
// and memberships are mutable; campaigns and templates are fixed.
type stub struct {
	mu        sync.Mutex
	contacts  map[string]apiclient.Contact
	lists     map[string]apiclient.ContactList
	members   map[string][]string // list id -> contact ids in insertion order
	campaigns []apiclient.Campaign
	templates []apiclient.Template
	nextID    int
}

var firstNames = []string{"Juan", "Ana", "Luis", "María", "Carlos", "Lucía", "Pedro", "Sofía"}

func newStub(contacts int) *stub {
	s := &stub{
		contacts: map[string]apiclient.Contact{},
		lists:    map[string]apiclient.ContactList{},
		members:  map[string][]string{},
	}
	for i := 1; i <= contacts; i++ {
		id := strconv.Itoa(i)
		s.contacts[id] = apiclient.Contact{
			ID:        apiclient.ID(id),
			Email:     fmt.Sprintf("contacto%d@example.com", i),
			FirstName: firstNames[(i-1)%len(firstNames)],
			Company:   "Empresa ABC",
		}
	}
	s.nextID = contacts + 1

	s.lists["1"] = apiclient.ContactList{ID: "1", Name: "Clientes", UserID: "1"}
	for i := 1; i <= contacts; i++ {
		s.members["1"] = append(s.members["1"], strconv.Itoa(i))
	}
	s.lists["2"] = apiclient.ContactList{ID: "2", Name: "Newsletter", UserID: "1"}

	s.campaigns = []apiclient.Campaign{
		{ID: "1", Name: "Bienvenida", Subject: "Hola {{firstName}}", Status: apiclient.CampaignSent, TemplateID: "1", UserID: "1"},
		{ID: "2", Name: "Promoción Febrero", Subject: "Ofertas de {{month}}", Status: apiclient.CampaignDraft, TemplateID: "2", UserID: "1"},
	}
	s.templates = []apiclient.Template{
		{ID: "1", Name: "Bienvenida", Subject: "Hola {{firstName}}", HTMLContent: "<p>Hola {{firstName}} de {{company}}</p>", Status: apiclient.TemplateActive, UserID: "1"},
		{ID: "2", Name: "Promoción", Subject: "Ofertas de {{month}}", HTMLContent: "<p>{{actionUrl}}</p>", Status: apiclient.TemplateDraft, UserID: "1"},
	}
	return s
}

func (s *stub) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Server-Identity", "masivos-stub-api")
			w.Header().Set("X-Server-Warning", "STUB - in-memory data only")
			next.ServeHTTP(w, req)
		})
	})

	r.Get("/actuator/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.OK(w, map[string]string{"status": "UP"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/contacts", s.listContacts)
		r.Get("/contacts/stats", s.contactStats)
		r.Get("/contacts/lists", s.listLists)
		r.Post("/contacts/lists", s.createList)
		r.Get("/contacts/list/{id}/contacts", s.listMembers)
		r.Post("/contacts/{cid}/lists/{lid}", s.addToList)
		r.Get("/contacts/{id}", s.getContact)
		r.Delete("/contacts/{id}", s.deleteContact)

		r.Get("/campaigns", func(w http.ResponseWriter, _ *http.Request) { httputil.OK(w, s.campaigns) })
		r.Get("/campaigns/stats", func(w http.ResponseWriter, _ *http.Request) {
			httputil.OK(w, apiclient.CampaignStats{TotalCampaigns: 2, DraftCampaigns: 1, SentCampaigns: 1})
		})
		r.Get("/templates", func(w http.ResponseWriter, _ *http.Request) { httputil.OK(w, s.templates) })
		r.Get("/templates/stats", func(w http.ResponseWriter, _ *http.Request) {
			httputil.OK(w, apiclient.TemplateStats{TotalTemplates: 2, ActiveTemplates: 1, DraftTemplates: 1})
		})
		r.Get("/emails/stats", func(w http.ResponseWriter, _ *http.Request) {
			httputil.OK(w, apiclient.EmailStats{SentEmails: 200, DeliveredEmails: 190, FailedEmails: 10, OpenRate: 0.5})
		})
	})
	return r
}

// sortedIDs orders numeric ids numerically.
func sortedIDs[T any](m map[string]T) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, _ := strconv.Atoi(ids[i])
		b, _ := strconv.Atoi(ids[j])
		return a < b
	})
	return ids
}

func (s *stub) listContacts(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]apiclient.Contact, 0, len(s.contacts))
	for _, id := range sortedIDs(s.contacts) {
		out = append(out, s.contacts[id])
	}
	httputil.OK(w, out)
}

func (s *stub) getContact(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	c, ok := s.contacts[chi.URLParam(r, "id")]
	s.mu.Unlock()
	if !ok {
		httputil.NotFound(w, "contact not found")
		return
	}
	httputil.OK(w, c)
}

func (s *stub) deleteContact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[id]; !ok {
		httputil.NotFound(w, "contact not found")
		return
	}
	delete(s.contacts, id)
	for lid, ids := range s.members {
		kept := ids[:0]
		for _, cid := range ids {
			if cid != id {
				kept = append(kept, cid)
			}
		}
		s.members[lid] = kept
	}
	httputil.NoContent(w)
}

func (s *stub) contactStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	httputil.OK(w, apiclient.ContactStats{
		TotalContacts:  int64(len(s.contacts)),
		ActiveContacts: int64(len(s.contacts)),
		TotalLists:     int64(len(s.lists)),
	})
}

func (s *stub) listLists(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]apiclient.ContactList, 0, len(s.lists))
	for _, id := range sortedIDs(s.lists) {
		l := s.lists[id]
		l.ContactCount = int64(len(s.members[id]))
		out = append(out, l)
	}
	httputil.OK(w, out)
}

func (s *stub) createList(w http.ResponseWriter, r *http.Request) {
	var in apiclient.ContactList
	if !httputil.Decode(w, r, &in) {
		return
	}
	if in.Name == "" {
		httputil.BadRequest(w, "name is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	in.ID = apiclient.ID(strconv.Itoa(s.nextID))
	s.nextID++
	s.lists[in.ID.String()] = in
	httputil.Created(w, in)
}

// listMembers answers one page of a list in the Spring page shape.
func (s *stub) listMembers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if size <= 0 {
		size = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lists[id]; !ok {
		httputil.NotFound(w, "list not found")
		return
	}
	ids := s.members[id]
	total := len(ids)
	from := min(page*size, total)
	to := min(from+size, total)

	content := make([]apiclient.Contact, 0, to-from)
	for _, cid := range ids[from:to] {
		content = append(content, s.contacts[cid])
	}
	pages := (total + size - 1) / size
	httputil.OK(w, apiclient.Page[apiclient.Contact]{
		Content:       content,
		Number:        page,
		Size:          size,
		TotalElements: int64(total),
		TotalPages:    pages,
		First:         page == 0,
		Last:          page >= pages-1,
		Empty:         len(content) == 0,
	})
}

func (s *stub) addToList(w http.ResponseWriter, r *http.Request) {
	cid, lid := chi.URLParam(r, "cid"), chi.URLParam(r, "lid")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[cid]; !ok {
		httputil.NotFound(w, "contact not found")
		return
	}
	if _, ok := s.lists[lid]; !ok {
		httputil.NotFound(w, "list not found")
		return
	}
	for _, existing := range s.members[lid] {
		if existing == cid {
			httputil.Error(w, http.StatusConflict, "contact already in list")
			return
		}
	}
	s.members[lid] = append(s.members[lid], cid)
	httputil.OK(w, map[string]bool{"success": true})
}
