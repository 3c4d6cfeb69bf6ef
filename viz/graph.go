// ABOUTME: GraphViz rendering of contact aggregation: contacts, their raw contacts and exceptions
// ABOUTME: Produces DOT source for one contact's neighbourhood or the whole database
package viz

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/provider"
)

// Source is the read side of the provider used for rendering.
type Source interface {
	ListContacts(ctx context.Context, opts provider.CallOptions, limit, offset int) ([]provider.ContactView, error)
	GetContact(ctx context.Context, opts provider.CallOptions, id int64) (*provider.ContactView, error)
	ListAggregationExceptions(ctx context.Context, opts provider.CallOptions) ([]models.AggregationException, error)
}

type GraphGenerator struct {
	src  Source
	opts provider.CallOptions
}

func NewGraphGenerator(src Source, opts provider.CallOptions) *GraphGenerator {
	return &GraphGenerator{src: src, opts: opts}
}

// Graph is rendered DOT plus its size.
type Graph struct {
	DOT   string
	Nodes int
	Edges int
}

// contacts loads the contacts to draw with their members. A non-nil
// contactID limits the graph to that contact.
func (g *GraphGenerator) contacts(ctx context.Context, contactID *int64) ([]provider.ContactView, error) {
	if contactID != nil {
		c, err := g.src.GetContact(ctx, g.opts, *contactID)
		if err != nil {
			return nil, err
		}
		return []provider.ContactView{*c}, nil
	}
	list, err := g.src.ListContacts(ctx, g.opts, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch contacts: %w", err)
	}
	out := make([]provider.ContactView, 0, len(list))
	for _, c := range list {
		full, err := g.src.GetContact(ctx, g.opts, c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, *full)
	}
	return out, nil
}

// GenerateMembershipGraph draws contacts as boxes linked to their raw
// contacts, plus an edge for every keep-together or keep-separate exception
// whose raw contacts are both on the graph.
func (g *GraphGenerator) GenerateMembershipGraph(ctx context.Context, contactID *int64) (Graph, error) {
	contacts, err := g.contacts(ctx, contactID)
	if err != nil {
		return Graph{}, err
	}
	exceptions, err := g.src.ListAggregationExceptions(ctx, g.opts)
	if err != nil {
		return Graph{}, fmt.Errorf("failed to fetch exceptions: %w", err)
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return Graph{}, fmt.Errorf("failed to create graphviz instance: %w", err)
	}
	defer gv.Close()

	graph, err := gv.Graph()
	if err != nil {
		return Graph{}, fmt.Errorf("failed to create graph: %w", err)
	}
	defer graph.Close()

	graph.SetLabel("Contact aggregation")
	graph.SetRankDir(cgraph.LRRank)

	var out Graph
	rawNodes := make(map[int64]*cgraph.Node)
	for _, c := range contacts {
		cn, err := graph.CreateNodeByName(fmt.Sprintf("contact_%d", c.ID))
		if err != nil {
			return Graph{}, fmt.Errorf("failed to create contact node: %w", err)
		}
		cn.SetLabel(fmt.Sprintf("%s\n(contact %d)", nameOr(c.DisplayName), c.ID))
		cn.SetShape("box")
		cn.SetStyle("filled")
		cn.SetFillColor("lightblue")
		out.Nodes++

		for _, r := range c.RawContacts {
			rn, err := graph.CreateNodeByName(fmt.Sprintf("raw_%d", r.ID))
			if err != nil {
				return Graph{}, fmt.Errorf("failed to create raw contact node: %w", err)
			}
			rn.SetLabel(fmt.Sprintf("%s\n%s", nameOr(r.DisplayName), r.Account))
			rn.SetShape("ellipse")
			rn.SetStyle("filled")
			rn.SetFillColor("lightgreen")
			rawNodes[r.ID] = rn
			out.Nodes++

			if _, err := graph.CreateEdgeByName(fmt.Sprintf("member_%d", r.ID), cn, rn); err != nil {
				return Graph{}, fmt.Errorf("failed to create edge: %w", err)
			}
			out.Edges++
		}
	}

	for _, e := range exceptions {
		n1, ok1 := rawNodes[e.RawContactID1]
		n2, ok2 := rawNodes[e.RawContactID2]
		if !ok1 || !ok2 {
			continue
		}
		edge, err := graph.CreateEdgeByName(fmt.Sprintf("exception_%d_%d", e.RawContactID1, e.RawContactID2), n1, n2)
		if err != nil {
			return Graph{}, fmt.Errorf("failed to create exception edge: %w", err)
		}
		edge.SetLabel(e.Type.String())
		edge.SetDir("none")
		if e.Type == models.ExceptionKeepSeparate {
			edge.SetStyle("dashed")
			edge.SetColor("red")
		} else {
			edge.SetColor("darkgreen")
		}
		out.Edges++
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.XDOT, &buf); err != nil {
		return Graph{}, fmt.Errorf("failed to render graph: %w", err)
	}
	out.DOT = buf.String()
	return out, nil
}

func nameOr(name string) string {
	if name == "" {
		return "(no name)"
	}
	return name
}
