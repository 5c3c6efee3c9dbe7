// Package tui is the interactive terminal dashboard over the case list.
package tui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	log "github.com/sirupsen/logrus"

	"go-case-tracker/internal/caselist"
	"go-case-tracker/internal/form"
	"go-case-tracker/internal/messages"
	"go-case-tracker/internal/modal"
	"go-case-tracker/internal/models"
	"go-case-tracker/internal/mutation"
	"go-case-tracker/internal/upload"
)

const modalPage = "modal"

// Options wires the dashboard to the core.
type Options struct {
	Fetcher     caselist.Fetcher
	Service     *mutation.Service
	Timing      upload.Timing
	SettleDelay time.Duration
	Observers   []caselist.Observer
}

// Dashboard renders the case list and runs one card modal at a time.
type Dashboard struct {
	ctx      context.Context
	app      *tview.Application
	list     *caselist.Controller
	choosers *Choosers
	now      func() time.Time
	// draw schedules fn on the UI goroutine.
	draw func(fn func())

	pages  *tview.Pages
	header *tview.TextView
	table  *tview.Table
	status *tview.TextView

	// UI goroutine only
	active    *modal.Controller
	activeFor models.Case
	shownForm *form.Controller
	shownKind modal.Kind
	formInfo  *tview.TextView
	confirm   *tview.Modal

	statusMu  sync.Mutex
	statusMsg string
}

// New builds the dashboard. Nothing is fetched until Run.
func New(ctx context.Context, opts Options) *Dashboard {
	d := &Dashboard{
		ctx:      ctx,
		app:      tview.NewApplication(),
		choosers: NewChoosers(),
		now:      time.Now,
	}
	d.draw = func(fn func()) {
		go d.app.QueueUpdateDraw(fn)
	}

	deps := modal.Deps{
		Deleter: opts.Service,
		Form: form.Deps{
			Submitter:    opts.Service,
			Timing:       opts.Timing,
			SettleDelay:  opts.SettleDelay,
			ImageChooser: d.choosers.Image,
			ModelChooser: d.choosers.Model,
			OnWarn: func(kind models.AttachmentKind, reason string) {
				d.setStatus(fmt.Sprintf("[%s]%s[-]", tagWarning, tview.Escape(reason)))
			},
			OnChange: d.requestRender,
			OnDone: func(out mutation.Outcome) {
				d.setStatus(fmt.Sprintf("[%s]%s[-]", tagSuccess, messages.CaseSaved))
			},
		},
		OnState: func(modal.State) { d.requestRender() },
	}
	d.list = caselist.New(ctx, opts.Fetcher, deps)
	for _, o := range opts.Observers {
		d.list.Subscribe(o)
	}
	d.list.OnChange(d.requestRender)

	d.setupLayout()
	return d
}

func (d *Dashboard) setupLayout() {
	d.header = tview.NewTextView().SetDynamicColors(true)
	d.header.SetBorder(true).SetTitle(" " + messages.TitleDashboard + " ").SetTitleAlign(tview.AlignLeft)

	d.table = tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false).
		SetFixed(1, 0)
	d.table.SetBorder(true).SetTitle(" " + messages.LabelCases + " ").SetTitleAlign(tview.AlignLeft)
	d.table.SetSelectedFunc(func(row, _ int) { d.openSelected() })
	d.table.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		switch ev.Rune() {
		case 'e':
			d.editSelected()
			return nil
		case 'd':
			d.confirmSelected()
			return nil
		case 'r':
			d.refresh()
			return nil
		case 'q':
			d.app.Stop()
			return nil
		}
		return ev
	})

	d.status = tview.NewTextView().SetDynamicColors(true)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.header, 3, 0, false).
		AddItem(d.table, 0, 1, true).
		AddItem(d.status, 1, 0, false)

	d.pages = tview.NewPages().AddPage("main", layout, true, true)
	d.app.SetRoot(d.pages, true).EnableMouse(true)
	d.render()
}

// Run loads the list and blocks until the user quits or ctx ends.
func (d *Dashboard) Run() error {
	go d.refresh()
	go func() {
		<-d.ctx.Done()
		d.app.Stop()
	}()
	return d.app.Run()
}

func (d *Dashboard) refresh() {
	if err := d.list.Refresh(d.ctx); err != nil {
		log.WithError(err).Warn("Case list refresh failed")
	}
}

func (d *Dashboard) requestRender() {
	d.draw(d.render)
}

func (d *Dashboard) setStatus(msg string) {
	d.statusMu.Lock()
	d.statusMsg = msg
	d.statusMu.Unlock()
	d.requestRender()
}

func (d *Dashboard) selectedCard() (modal.Card, bool) {
	row, _ := d.table.GetSelection()
	cards := d.list.Cards()
	if row < 1 || row > len(cards) {
		return modal.Card{}, false
	}
	return cards[row-1], true
}

func (d *Dashboard) openSelected() {
	card, ok := d.selectedCard()
	if !ok {
		return
	}
	if card.IsAdd() {
		d.choosers.Reset()
		if _, err := card.Modal.OpenCreate(); err != nil {
			log.WithError(err).Debug("Cannot open create form")
			return
		}
		d.active, d.activeFor = card.Modal, card.Case
		d.render()
		return
	}
	d.editSelected()
}

func (d *Dashboard) editSelected() {
	card, ok := d.selectedCard()
	if !ok || card.IsAdd() {
		return
	}
	d.choosers.Reset()
	if _, err := card.Modal.OpenEdit(); err != nil {
		return
	}
	d.active, d.activeFor = card.Modal, card.Case
	d.render()
}

func (d *Dashboard) confirmSelected() {
	card, ok := d.selectedCard()
	if !ok || card.IsAdd() {
		return
	}
	if err := card.Modal.OpenConfirm(); err != nil {
		return
	}
	d.active, d.activeFor = card.Modal, card.Case
	d.render()
}

// render redraws everything from controller state. UI goroutine only.
func (d *Dashboard) render() {
	d.header.SetText(headerText(d.list.Summary(d.now()), d.list.Loading(), d.list.Err()))
	d.renderTable()

	d.statusMu.Lock()
	msg := d.statusMsg
	d.statusMu.Unlock()
	if msg == "" {
		msg = fmt.Sprintf("[%s]%s[-]", tagMuted, messages.KeyHelp)
	}
	d.status.SetText(msg)

	d.renderModal()
}

func (d *Dashboard) renderTable() {
	row, _ := d.table.GetSelection()
	d.table.Clear()
	for col, h := range tableHeaders {
		d.table.SetCell(0, col, tview.NewTableCell(h).
			SetTextColor(tcell.ColorYellow).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false))
	}
	for i, card := range d.list.Cards() {
		r := i + 1
		if card.IsAdd() {
			d.table.SetCell(r, 0, tview.NewTableCell("+").SetTextColor(tcell.ColorTeal))
			d.table.SetCell(r, 1, tview.NewTableCell(messages.TitleNewCase).SetTextColor(tcell.ColorTeal))
			continue
		}
		for col, text := range caseRow(card.Case) {
			d.table.SetCell(r, col, tview.NewTableCell(tview.Escape(text)))
		}
	}
	if row < 1 {
		row = 1
	}
	if last := d.table.GetRowCount() - 1; row > last {
		row = last
	}
	d.table.Select(row, 0)
}

func (d *Dashboard) renderModal() {
	if d.active == nil {
		d.hideModal()
		return
	}
	st := d.active.State()
	switch st.Kind {
	case modal.Closed:
		d.active = nil
		d.hideModal()
	case modal.FormOpen:
		f := d.active.Form()
		if f == nil {
			return
		}
		if d.shownForm != f || d.shownKind != modal.FormOpen {
			d.showForm(f)
		}
		d.formInfo.SetText(formInfoText(f))
	case modal.ConfirmOpen:
		if d.shownKind != modal.ConfirmOpen {
			d.showConfirm()
		}
		d.confirm.SetText(confirmText(d.activeFor, d.active))
	}
}

func (d *Dashboard) hideModal() {
	if d.pages.HasPage(modalPage) {
		d.pages.RemovePage(modalPage)
		d.app.SetFocus(d.table)
	}
	d.shownForm = nil
	d.shownKind = modal.Closed
	d.formInfo = nil
	d.confirm = nil
}

func (d *Dashboard) showForm(f *form.Controller) {
	active := d.active
	title := " " + messages.TitleNewCase + " "
	if f.Mode() == models.ModeEdit {
		title = " " + fmt.Sprintf(messages.TitleEditCaseFmt, f.TargetID()) + " "
	}

	fm := tview.NewForm()
	fm.SetBorder(true).SetTitle(title)
	fm.AddInputField(messages.LabelCase, f.Name(), 40, nil, f.SetName)
	fm.AddTextArea(messages.LabelDescription, f.Description(), 40, 3, 0, f.SetDescription)
	fm.AddInputField(messages.LabelImage, "", 40, nil, func(text string) { d.choosers.Set(models.KindImage, text) })
	fm.AddInputField(messages.LabelModelIFC, "", 40, nil, func(text string) { d.choosers.Set(models.KindModel, text) })
	fm.AddButton(messages.ButtonAttachImg, func() { go f.Image.Click() })
	fm.AddButton(messages.ButtonAttachIFC, func() { go f.Model.Click() })
	fm.AddButton(messages.ButtonClearImg, func() { go f.Image.Clear() })
	fm.AddButton(messages.ButtonClearIFC, func() { go f.Model.Clear() })
	fm.AddButton(messages.ButtonSave, func() {
		go func() {
			if err := f.Submit(d.ctx); err != nil {
				log.WithError(err).Debug("Form submit returned error")
			}
		}()
	})
	fm.AddButton(messages.ButtonCancel, active.Close)
	fm.SetCancelFunc(active.Close)

	d.formInfo = tview.NewTextView().SetDynamicColors(true)
	body := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(fm, 0, 1, true).
		AddItem(d.formInfo, 4, 0, false)

	d.showOverlay(body, 64, 24)
	d.shownForm = f
	d.shownKind = modal.FormOpen
}

func (d *Dashboard) showConfirm() {
	active := d.active
	m := tview.NewModal().AddButtons([]string{messages.ButtonDelete, messages.ButtonCancel})
	m.SetDoneFunc(func(_ int, label string) {
		if label != messages.ButtonDelete {
			active.Close()
			return
		}
		go func() {
			if err := active.Confirm(d.ctx); err != nil {
				log.WithError(err).Debug("Delete confirm returned error")
			}
		}()
	})
	d.confirm = m
	if d.pages.HasPage(modalPage) {
		d.pages.RemovePage(modalPage)
	}
	d.pages.AddPage(modalPage, m, true, true)
	d.app.SetFocus(m)
	d.shownForm = nil
	d.shownKind = modal.ConfirmOpen
}

// showOverlay centers body over the list. Clicks outside body are backdrop clicks.
func (d *Dashboard) showOverlay(body tview.Primitive, width, height int) {
	active := d.active
	box := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(body, height, 0, true).
		AddItem(nil, 0, 1, false)
	overlay := tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(box, width, 0, true).
		AddItem(nil, 0, 1, false)
	overlay.SetMouseCapture(func(action tview.MouseAction, ev *tcell.EventMouse) (tview.MouseAction, *tcell.EventMouse) {
		if action != tview.MouseLeftClick {
			return action, ev
		}
		x, y := ev.Position()
		bx, by, bw, bh := body.GetRect()
		inside := x >= bx && x < bx+bw && y >= by && y < by+bh
		if active.BackdropClick(inside) {
			return action, nil
		}
		return action, ev
	})

	if d.pages.HasPage(modalPage) {
		d.pages.RemovePage(modalPage)
	}
	d.pages.AddPage(modalPage, overlay, true, true)
	d.app.SetFocus(body)
}

func formInfoText(f *form.Controller) string {
	text := widgetLine(messages.LabelImage, f.Image.Snapshot()) + "\n" + widgetLine(messages.LabelIFC, f.Model.Snapshot())
	switch {
	case f.Busy():
		text += fmt.Sprintf("\n[%s]%s[-]", tagWarning, messages.Sending)
	case f.Error() != "":
		text += fmt.Sprintf("\n[%s]%s[-]", tagError, tview.Escape(f.Error()))
	}
	return text
}

func confirmText(c models.Case, m *modal.Controller) string {
	text := fmt.Sprintf(messages.ConfirmDeleteQ, c.Name)
	switch {
	case m.Deleting():
		text += "\n\n" + messages.Deleting
	case m.Error() != "":
		text += "\n\n" + m.Error()
	}
	return text
}
