// Package messages holds every text shown to the people working the cases.
// The dashboard speaks Portuguese; logs, flags help and operator commands
// (journal, config, seed) stay in English.
package messages

// Attachment and form feedback.
const (
	NoFileSelected  = "Nenhum arquivo selecionado."
	OnlyImageFiles  = "Por favor, selecione apenas arquivos de imagem."
	OnlyIFCFiles    = "Por favor, selecione apenas arquivos IFC."
	UnknownKindFmt  = "Tipo de anexo desconhecido: %q"
	MissingTarget   = "Sem ID do caso para editar"
	Sending         = "Enviando..."
	Deleting        = "Excluindo..."
	Loading         = "Carregando..."
	SlotEmpty       = "nenhum arquivo"
	SlotDropHere    = "solte o arquivo aqui"
	SlotCurrentFmt  = "atual: %s"
	SlotReady       = "pronto"
	AlreadyOnDisk   = "já existe"
	ConfirmDeleteQ  = "Excluir o caso %q?"
	ConfirmDeleteYN = "Excluir o caso %q? Esta ação não pode ser desfeita. (y/N): "
)

// Labels, titles and buttons.
const (
	LabelID          = "ID"
	LabelCase        = "Caso"
	LabelCases       = "Casos"
	LabelDescription = "Descrição"
	LabelProgress    = "Progresso"
	LabelDate        = "Data"
	LabelImage       = "Imagem"
	LabelIFC         = "IFC"
	LabelModelIFC    = "Modelo IFC"
	LabelThisMonth   = "Este mês"
	LabelLast24h     = "Últimas 24h"
	TitleDashboard   = "Painel de casos"
	TitleNewCase     = "Novo caso"
	TitleEditCaseFmt = "Editar caso %d"
	ButtonAttachImg  = "Anexar imagem"
	ButtonAttachIFC  = "Anexar IFC"
	ButtonClearImg   = "Limpar imagem"
	ButtonClearIFC   = "Limpar IFC"
	ButtonSave       = "Salvar"
	ButtonCancel     = "Cancelar"
	ButtonDelete     = "Excluir"
	KeyHelp          = "Enter abrir  e editar  d excluir  r atualizar  q sair"
)

// Outcomes.
const (
	CaseSaved          = "Caso salvo"
	CaseCreatedFmt     = "Caso %d criado: %s"
	CaseUpdatedFmt     = "Caso %d atualizado: %s"
	CaseCreated        = "Caso criado"
	CaseUpdated        = "Caso atualizado"
	CaseDeletedFmt     = "Caso %d excluído."
	Cancelled          = "Cancelado."
	NoCases            = "Nenhum caso cadastrado."
	NoSearchResults    = "Nenhum caso encontrado."
	NoAttachmentsFmt   = "Caso %d não possui anexos."
	LoadingCases       = "Carregando casos..."
	LoadFailedFmt      = "Falha ao carregar casos: %v"
	CasesLoadedFmt     = "%d casos carregados"
	ListHeader         = "ID\tCASO\tPROGRESSO\tDATA\tIMAGEM\tIFC"
	SearchHeader       = "ID\tCASO\tDATA\tSCORE"
	SummaryLineFmt     = LabelCases + ": %d | " + LabelThisMonth + ": %d | " + LabelLast24h + ": %d"
)
