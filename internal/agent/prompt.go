package agent

import (
	"strconv"
	"strings"

	"github.com/54b3r/shopai-go/internal/rag"
)

// SystemPrompt is the instruction set for the answer synthesis call.
const SystemPrompt = `Assistant helps customers with questions about products.
Respond as if you are a salesperson helping a customer in a store.
Do NOT respond with tables. Answer ONLY with the product details listed in the products.
If there isn't enough information below, say you don't know.
Do not generate answers that don't use the sources below.
Each product has an ID in brackets followed by colon and the product details.
Always include the product ID for each product you use in the response.
Use square brackets to reference the source, for example [52].
Don't combine citations, list each product separately, for example [27][51].`

// FormatSource renders one result as a source line followed by a blank line.
func FormatSource(r rag.FusedResult) string {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(strconv.FormatInt(r.ProductID, 10))
	sb.WriteString("]: Name: ")
	sb.WriteString(r.Name)
	sb.WriteString(" Description: ")
	sb.WriteString(r.Description)
	sb.WriteString(" Price:")
	sb.WriteString(strconv.FormatFloat(r.Price, 'f', 2, 64))
	sb.WriteString("\n\n")
	return sb.String()
}

// FormatSources concatenates FormatSource over results in order.
func FormatSources(results []rag.FusedResult) string {
	var sb strings.Builder
	for _, r := range results {
		sb.WriteString(FormatSource(r))
	}
	return sb.String()
}

// BuildUserPrompt appends the sources block to the user's query.
func BuildUserPrompt(userQuery, sources string) string {
	return userQuery + "\nSources:\n" + sources
}
