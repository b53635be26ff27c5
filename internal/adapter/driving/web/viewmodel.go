package web

import (
	"time"

	vm "github.com/ericfisherdev/tgvault/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/tgvault/internal/domain/model"
)

const shellTitle = "tgvault"

// toShellViewModel builds the shell page data from the session state.
func toShellViewModel(state model.SessionState, revealWindow time.Duration, csrf string) vm.ShellViewModel {
	infos := model.Categories()
	cats := make([]vm.CategoryViewModel, 0, len(infos))
	for _, info := range infos {
		cats = append(cats, vm.CategoryViewModel{
			ID:    string(info.Category),
			Label: info.Label,
			Icon:  info.Icon,
		})
	}

	return vm.ShellViewModel{
		Title:               shellTitle,
		State:               string(state),
		CanLock:             state == model.StateUnlocked,
		CSRFToken:           csrf,
		RevealWindowSeconds: int(revealWindow / time.Second),
		Categories:          cats,
	}
}

// toNotesViewModel renders c's notes. The secret is never touched.
func toNotesViewModel(c model.Credential) vm.NotesViewModel {
	return vm.NotesViewModel{
		ID:       c.ID,
		Service:  c.Service,
		HTML:     RenderMarkdown(c.Notes),
		HasNotes: c.Notes != "",
	}
}
