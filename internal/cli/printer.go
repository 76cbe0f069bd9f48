package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/mmeshcher/storefront/internal/config"
	"github.com/mmeshcher/storefront/internal/model"
)

// Printer выводит результаты команд в выбранном формате.
type Printer struct {
	w      io.Writer
	format string
}

// NewPrinter создаёт Printer. Неизвестный формат трактуется как text.
func NewPrinter(w io.Writer, format string) *Printer {
	return &Printer{w: w, format: format}
}

// Print выводит значение.
func (p *Printer) Print(v any) error {
	switch p.format {
	case config.OutputJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case config.OutputYAML:
		return p.printYAML(v)
	}
	return p.printText(v)
}

// printYAML сохраняет имена полей и порядок ключей из JSON-представления.
func (p *Printer) printYAML(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("convert to yaml: %w", err)
	}
	plain(&node)

	enc := yaml.NewEncoder(p.w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

func plain(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		plain(c)
	}
}

func (p *Printer) printText(v any) error {
	tw := tabwriter.NewWriter(p.w, 2, 0, 3, ' ', 0)

	switch x := v.(type) {
	case message:
		fmt.Fprintln(tw, string(x))
	case *model.Session:
		fmt.Fprintf(tw, "user:\t%s\n", x.User.Email)
		fmt.Fprintf(tw, "id:\t%d\n", x.User.ID)
		fmt.Fprintf(tw, "role:\t%s\n", x.User.Role)
	case *model.Account:
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", x.UserID, x.Name, x.Email, x.Role)
	case *model.Cart:
		if x.Empty() {
			fmt.Fprintln(tw, "cart is empty")
			break
		}
		fmt.Fprintln(tw, "PRODUCT\tPRICE\tQTY\tTOTAL")
		for _, it := range x.Items {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", it.ProdName, it.Price.StringFixed(2), it.Quantity, it.TotalPrice.StringFixed(2))
		}
		fmt.Fprintf(tw, "\t\t\t%s\n", x.CartTotalPrice.StringFixed(2))
	case *model.Order:
		printOrder(tw, x)
	case []model.Order:
		if len(x) == 0 {
			fmt.Fprintln(tw, "no orders")
			break
		}
		fmt.Fprintln(tw, "ORDER\tDATE\tITEMS\tTOTAL")
		for _, o := range x {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", o.OrderID, o.OrderDate.Format("2006-01-02 15:04"), len(o.OrderItems), o.TotalBillPrice.StringFixed(2))
		}
	case *model.Transaction:
		fmt.Fprintf(tw, "transaction:\t%d\n", x.TransactionID)
		fmt.Fprintf(tw, "order:\t%d\n", x.OrderID)
		fmt.Fprintf(tw, "mode:\t%s\n", x.PaymentMode)
		fmt.Fprintf(tw, "status:\t%s\n", x.PaymentStatus)
		fmt.Fprintf(tw, "required:\t%s\n", x.RequiredAmount.StringFixed(2))
		fmt.Fprintf(tw, "received:\t%s\n", x.ReceivedAmount.StringFixed(2))
		fmt.Fprintf(tw, "balance:\t%s\n", x.BalanceAmount.StringFixed(2))
	case *model.Product:
		fmt.Fprintln(tw, "PRODUCT\tPRICE\tSTOCK\tCATEGORY")
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", x.ProdName, x.Price.StringFixed(2), x.Stock, x.Category.CategoryName)
	case []model.Product:
		fmt.Fprintln(tw, "PRODUCT\tPRICE\tSTOCK\tCATEGORY")
		for _, pr := range x {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", pr.ProdName, pr.Price.StringFixed(2), pr.Stock, pr.Category.CategoryName)
		}
	case *model.Category:
		fmt.Fprintf(tw, "%d\t%s\n", x.CategoryID, x.CategoryName)
	case []model.Category:
		for _, c := range x {
			fmt.Fprintf(tw, "%d\t%s\n", c.CategoryID, c.CategoryName)
		}
	case routeResult:
		fmt.Fprintf(tw, "decision:\t%s\n", x.Decision)
		if x.Redirect != "" {
			fmt.Fprintf(tw, "redirect:\t%s\n", x.Redirect)
		}
	default:
		fmt.Fprintf(tw, "%+v\n", v)
	}

	return tw.Flush()
}

func printOrder(w io.Writer, o *model.Order) {
	fmt.Fprintf(w, "order:\t%d\n", o.OrderID)
	fmt.Fprintf(w, "user:\t%d\n", o.UserID)
	fmt.Fprintf(w, "date:\t%s\n", o.OrderDate.Format("2006-01-02 15:04"))
	fmt.Fprintln(w, "PRODUCT\tPRICE\tQTY\tTOTAL")
	for _, it := range o.OrderItems {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", it.ProdName, it.Price.StringFixed(2), it.Quantity, it.TotalPrice.StringFixed(2))
	}
	fmt.Fprintf(w, "\t\t\t%s\n", o.TotalBillPrice.StringFixed(2))
}
