package formula

import "fmt"

// node is one vertex of the arithmetic expression tree
type node interface {
	eval(inputs map[string]float64) (float64, error)
}

type numberNode struct {
	value float64
}

func (n *numberNode) eval(map[string]float64) (float64, error) {
	return n.value, nil
}

type identNode struct {
	name string
}

func (n *identNode) eval(inputs map[string]float64) (float64, error) {
	value, ok := inputs[n.name]
	if !ok {
		return 0, &UnresolvedDependencyError{Name: n.name}
	}
	return value, nil
}

type binaryNode struct {
	op          byte
	left, right node
}

func (n *binaryNode) eval(inputs map[string]float64) (float64, error) {
	left, err := n.left.eval(inputs)
	if err != nil {
		return 0, err
	}
	right, err := n.right.eval(inputs)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case '+':
		return left + right, nil
	case '-':
		return left - right, nil
	case '*':
		return left * right, nil
	case '/':
		return left / right, nil
	default:
		return 0, &UnsupportedOperatorError{Operator: string(n.op)}
	}
}

type negateNode struct {
	operand node
}

func (n *negateNode) eval(inputs map[string]float64) (float64, error) {
	value, err := n.operand.eval(inputs)
	if err != nil {
		return 0, err
	}
	return -value, nil
}

type callNode struct {
	name string
	args []node
}

func (n *callNode) eval(inputs map[string]float64) (float64, error) {
	args := make([]float64, len(n.args))
	for i, arg := range n.args {
		value, err := arg.eval(inputs)
		if err != nil {
			return 0, err
		}
		args[i] = value
	}
	fn := functions[n.name]
	return fn.apply(args)
}

type parser struct {
	tokens []token
	pos    int
}

// parse builds the expression tree. Unknown function names are rejected
// here, before any evaluation can run.
func parse(tokens []token) (node, error) {
	p := &parser{tokens: tokens}
	root, err := p.expression()
	if err != nil {
		return nil, err
	}
	if p.current().kind != tokenEOF {
		return nil, &SyntaxError{Message: fmt.Sprintf("unexpected '%s'", p.current().text), Position: p.current().pos}
	}
	return root, nil
}

func (p *parser) current() token {
	return p.tokens[p.pos]
}

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expression() (node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for {
		switch p.current().kind {
		case tokenPlus:
			p.advance()
			right, err := p.term()
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: '+', left: left, right: right}
		case tokenMinus:
			p.advance()
			right, err := p.term()
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: '-', left: left, right: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) term() (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.current().kind {
		case tokenStar:
			p.advance()
			right, err := p.unary()
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: '*', left: left, right: right}
		case tokenSlash:
			p.advance()
			right, err := p.unary()
			if err != nil {
				return nil, err
			}
			left = &binaryNode{op: '/', left: left, right: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) unary() (node, error) {
	if p.current().kind == tokenMinus {
		p.advance()
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &negateNode{operand: operand}, nil
	}
	return p.primary()
}

func (p *parser) primary() (node, error) {
	tok := p.current()
	switch tok.kind {
	case tokenNumber:
		p.advance()
		return &numberNode{value: tok.value}, nil
	case tokenLeftParen:
		p.advance()
		inner, err := p.expression()
		if err != nil {
			return nil, err
		}
		if p.current().kind != tokenRightParen {
			return nil, &SyntaxError{Message: "expected ')'", Position: p.current().pos}
		}
		p.advance()
		return inner, nil
	case tokenIdent:
		p.advance()
		if p.current().kind == tokenLeftParen {
			return p.call(tok)
		}
		return &identNode{name: tok.text}, nil
	default:
		return nil, &SyntaxError{Message: fmt.Sprintf("unexpected '%s'", tok.text), Position: tok.pos}
	}
}

func (p *parser) call(name token) (node, error) {
	fn, ok := functions[name.text]
	if !ok {
		return nil, &ForbiddenConstructError{Construct: name.text + "("}
	}
	// consume '('
	p.advance()
	var args []node
	if p.current().kind != tokenRightParen {
		for {
			arg, err := p.expression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.current().kind != tokenComma {
				break
			}
			p.advance()
		}
	}
	if p.current().kind != tokenRightParen {
		return nil, &SyntaxError{Message: "expected ')' after arguments", Position: p.current().pos}
	}
	p.advance()
	if err := fn.checkArity(name.text, len(args)); err != nil {
		return nil, err
	}
	return &callNode{name: name.text, args: args}, nil
}

// collectIdents walks the tree gathering every dependency identifier
func collectIdents(n node, into map[string]struct{}) {
	switch t := n.(type) {
	case *identNode:
		into[t.name] = struct{}{}
	case *binaryNode:
		collectIdents(t.left, into)
		collectIdents(t.right, into)
	case *negateNode:
		collectIdents(t.operand, into)
	case *callNode:
		for _, arg := range t.args {
			collectIdents(arg, into)
		}
	}
}
