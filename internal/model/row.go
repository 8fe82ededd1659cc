package model

import (
	"fmt"
	"time"

	"github.com/rezonia/nfe-conferencia/internal/decimal"
)

// Check markers written to the Check column
const (
	CheckOK      = "✅"
	CheckProblem = "❌"
)

// Date layouts used by the tabular store
const (
	DateLayout     = "02/01/2006"
	DateTimeLayout = "02/01/2006 15:04:05"
)

// Column headers of the conference sheet, in storage order
var rowColumns = []string{
	"Polo",
	"Operação",
	"Data Carga",
	"Carga",
	"NF",
	"Cód. Produto",
	"Descrição Produto",
	"Quant.",
	"Data Devolução",
	"Check",
	"chave_acesso",
	"usuario",
	"Data de conferência",
	"Observações",
}

// RowColumnCount is the fixed width of a stored row
const RowColumnCount = 14

// Row is one stored conference line. One LineItem produces exactly one Row.
type Row struct {
	Polo               string `json:"polo" bson:"polo" firestore:"polo"`
	Operation          string `json:"operacao" bson:"operacao" firestore:"operacao"`
	LoadDate           string `json:"data_carga" bson:"data_carga" firestore:"data_carga"`
	Load               string `json:"carga" bson:"carga" firestore:"carga"`
	InvoiceNumber      string `json:"nf" bson:"nf" firestore:"nf"`
	ProductCode        string `json:"cod_produto" bson:"cod_produto" firestore:"cod_produto"`
	ProductDescription string `json:"descricao_produto" bson:"descricao_produto" firestore:"descricao_produto"`
	Quantity           string `json:"quantidade" bson:"quantidade" firestore:"quantidade"`
	ReturnDate         string `json:"data_devolucao" bson:"data_devolucao" firestore:"data_devolucao"`
	Check              string `json:"check" bson:"check" firestore:"check"`
	AccessKey          string `json:"chave_acesso" bson:"chave_acesso" firestore:"chave_acesso"`
	Operator           string `json:"usuario" bson:"usuario" firestore:"usuario"`
	ConferenceDate     string `json:"data_conferencia" bson:"data_conferencia" firestore:"data_conferencia"`
	Notes              string `json:"observacoes" bson:"observacoes" firestore:"observacoes"`
	ConferenceID       string `json:"conferencia_id,omitempty" bson:"conferencia_id,omitempty" firestore:"conferencia_id,omitempty"`
}

// Columns returns the header line of the tabular store
func Columns() []string {
	out := make([]string, len(rowColumns))
	copy(out, rowColumns)
	return out
}

// Values returns the row cells in column order
func (r Row) Values() []string {
	return []string{
		r.Polo,
		r.Operation,
		r.LoadDate,
		r.Load,
		r.InvoiceNumber,
		r.ProductCode,
		r.ProductDescription,
		r.Quantity,
		r.ReturnDate,
		r.Check,
		r.AccessKey,
		r.Operator,
		r.ConferenceDate,
		r.Notes,
	}
}

// OK reports whether the conference line was confirmed without problems
func (r Row) OK() bool {
	return r.Check == CheckOK
}

// RowFromValues rebuilds a row from stored cells. Short rows are padded with empty cells.
func RowFromValues(values []string) (Row, error) {
	if len(values) > RowColumnCount {
		return Row{}, fmt.Errorf("row has %d cells, expected at most %d", len(values), RowColumnCount)
	}
	cells := make([]string, RowColumnCount)
	copy(cells, values)

	return Row{
		Polo:               cells[0],
		Operation:          cells[1],
		LoadDate:           cells[2],
		Load:               cells[3],
		InvoiceNumber:      cells[4],
		ProductCode:        cells[5],
		ProductDescription: cells[6],
		Quantity:           cells[7],
		ReturnDate:         cells[8],
		Check:              cells[9],
		AccessKey:          cells[10],
		Operator:           cells[11],
		ConferenceDate:     cells[12],
		Notes:              cells[13],
	}, nil
}

// Operation types offered to the operator
const (
	OperationDelivery = "Entrega"
	OperationReturn   = "Devolução"
	OperationReentry  = "Reentrega"
	OperationTransfer = "Transferência"
)

// Operations lists the accepted operation types
var Operations = []string{OperationDelivery, OperationReturn, OperationReentry, OperationTransfer}

// Conference holds the fields the warehouse worker fills in before saving
type Conference struct {
	ID         string    `json:"id,omitempty"`
	Operation  string    `json:"operacao" binding:"required"`
	LoadDate   time.Time `json:"data_carga"`
	Load       string    `json:"carga"`
	ReturnDate time.Time `json:"data_devolucao"`
	OK         bool      `json:"ok"`
	Notes      string    `json:"observacoes"`
}

// BuildRows expands a queried invoice into one row per line item
func BuildRows(sess Session, header InvoiceHeader, items []LineItem, conf Conference, now time.Time) []Row {
	check := CheckProblem
	if conf.OK {
		check = CheckOK
	}

	rows := make([]Row, 0, len(items))
	for _, item := range items {
		rows = append(rows, Row{
			Polo:               sess.Polo,
			Operation:          conf.Operation,
			LoadDate:           formatDate(conf.LoadDate),
			Load:               conf.Load,
			InvoiceNumber:      header.Number,
			ProductCode:        item.Code,
			ProductDescription: item.Description,
			Quantity:           decimal.FormatQuantity(item.Quantity),
			ReturnDate:         formatDate(conf.ReturnDate),
			Check:              check,
			AccessKey:          header.AccessKey,
			Operator:           sess.Operator,
			ConferenceDate:     now.Format(DateTimeLayout),
			Notes:              conf.Notes,
			ConferenceID:       conf.ID,
		})
	}
	return rows
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}
