package parser

import (
	"fmt"
	"strconv"
	"strings"

	relerr "github.com/relmap/relmap/internal/errors"
	"github.com/relmap/relmap/internal/query/ast"
)

// ParseError represents a parsing error with location information.
type ParseError struct {
	Message  string
	Position int
	Token    Token
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s (got %q)", e.Position, e.Message, e.Token.Literal)
}

// Parser parses conditions into ast expressions.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
}

// NewParser creates a new Parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	p.nextToken()
	p.nextToken()
	return p
}

// ParseCondition parses a boolean condition such as
// "day IN ('20120101', '20120201') AND user.last_name = 'Smith'".
// Qualified columns keep their qualifier in ColumnRef.Table. An empty
// input yields a nil expression.
func ParseCondition(input string) (ast.Expression, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	p := NewParser(input)
	expr, err := p.parseExpression(precLowest)
	if err == nil && !p.curTokenIs(TokenEOF) {
		err = p.errorf("unexpected trailing input")
	}
	if err != nil {
		return nil, relerr.Wrap(relerr.ErrCategoryValue, relerr.CodeParseError, "invalid condition", err)
	}
	return expr, nil
}

// ParseOrderBy parses a comma separated list such as "day DESC, thing".
func ParseOrderBy(input string) ([]ast.OrderByClause, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	p := NewParser(input)
	clauses, err := p.parseOrderByList()
	if err == nil && !p.curTokenIs(TokenEOF) {
		err = p.errorf("unexpected trailing input")
	}
	if err != nil {
		return nil, relerr.Wrap(relerr.ErrCategoryValue, relerr.CodeParseError, "invalid order by", err)
	}
	return clauses, nil
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	return &ParseError{
		Message:  fmt.Sprintf(format, args...),
		Position: p.curToken.Pos,
		Token:    p.curToken,
	}
}

func (p *Parser) parseOrderByList() ([]ast.OrderByClause, error) {
	var clauses []ast.OrderByClause

	for {
		if !p.curTokenIs(TokenIdent) {
			return nil, p.errorf("expected column")
		}
		col, err := p.parseColumn()
		if err != nil {
			return nil, err
		}

		clause := ast.OrderByClause{Expr: col}
		if p.curTokenIs(TokenAsc) {
			p.nextToken()
		} else if p.curTokenIs(TokenDesc) {
			clause.Desc = true
			p.nextToken()
		}
		clauses = append(clauses, clause)

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}

	return clauses, nil
}

// Operator precedence levels
const (
	precLowest  = 0
	precOr      = 1
	precAnd     = 2
	precNot     = 3
	precCompare = 4
	precUnary   = 5
)

func (p *Parser) getPrecedence() int {
	switch p.curToken.Type {
	case TokenOr:
		return precOr
	case TokenAnd:
		return precAnd
	case TokenEq, TokenNe, TokenLt, TokenGt, TokenLe, TokenGe, TokenLike, TokenIn, TokenBetween, TokenIs:
		return precCompare
	case TokenNot:
		// Infix NOT only introduces NOT IN / NOT LIKE / NOT BETWEEN.
		switch p.peekToken.Type {
		case TokenIn, TokenLike, TokenBetween:
			return precCompare
		}
		return precLowest
	default:
		return precLowest
	}
}

func (p *Parser) parseExpression(precedence int) (ast.Expression, error) {
	left, err := p.parsePrefixExpression()
	if err != nil {
		return nil, err
	}

	for !p.curTokenIs(TokenEOF) && precedence < p.getPrecedence() {
		left, err = p.parseInfixExpression(left)
		if err != nil {
			return nil, err
		}
	}

	return left, nil
}

func (p *Parser) parsePrefixExpression() (ast.Expression, error) {
	switch p.curToken.Type {
	case TokenIdent:
		return p.parseColumn()
	case TokenNumber:
		return p.parseNumber()
	case TokenString:
		val := strings.ReplaceAll(p.curToken.Literal, "''", "'")
		p.nextToken()
		return &ast.Literal{Value: val}, nil
	case TokenTrue, TokenFalse:
		val := p.curTokenIs(TokenTrue)
		p.nextToken()
		return &ast.Literal{Value: val}, nil
	case TokenNull:
		p.nextToken()
		return &ast.Literal{Value: nil}, nil
	case TokenLParen:
		return p.parseGroupedExpression()
	case TokenNot:
		return p.parseNotExpression()
	case TokenMinus:
		return p.parseUnaryMinus()
	case TokenError:
		return nil, p.errorf("invalid token")
	default:
		return nil, p.errorf("unexpected token in expression")
	}
}

// parseColumn parses "column" or "qualifier.column".
func (p *Parser) parseColumn() (*ast.ColumnRef, error) {
	name := p.curToken.Literal
	p.nextToken()

	if p.curTokenIs(TokenDot) {
		p.nextToken()
		if !p.curTokenIs(TokenIdent) {
			return nil, p.errorf("expected column name after dot")
		}
		col := &ast.ColumnRef{Table: name, Column: p.curToken.Literal}
		p.nextToken()
		return col, nil
	}

	return &ast.ColumnRef{Column: name}, nil
}

func (p *Parser) parseNumber() (ast.Expression, error) {
	literal := p.curToken.Literal
	tok := p.curToken
	p.nextToken()

	if !strings.Contains(literal, ".") {
		val, err := strconv.ParseInt(literal, 10, 64)
		if err == nil {
			return &ast.Literal{Value: val}, nil
		}
	}

	val, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		return nil, &ParseError{Message: "invalid number", Position: tok.Pos, Token: tok}
	}
	return &ast.Literal{Value: val}, nil
}

func (p *Parser) parseGroupedExpression() (ast.Expression, error) {
	p.nextToken()

	expr, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}

	if !p.curTokenIs(TokenRParen) {
		return nil, p.errorf("expected )")
	}
	p.nextToken()

	return &ast.ParenExpr{Expr: expr}, nil
}

func (p *Parser) parseNotExpression() (ast.Expression, error) {
	p.nextToken()

	expr, err := p.parseExpression(precNot)
	if err != nil {
		return nil, err
	}

	return &ast.UnaryExpr{Operator: ast.OpNot, Operand: expr}, nil
}

// parseUnaryMinus folds a minus sign into the following number literal.
func (p *Parser) parseUnaryMinus() (ast.Expression, error) {
	p.nextToken()

	if !p.curTokenIs(TokenNumber) {
		return nil, p.errorf("expected number after -")
	}
	expr, err := p.parseNumber()
	if err != nil {
		return nil, err
	}
	lit := expr.(*ast.Literal)
	switch v := lit.Value.(type) {
	case int64:
		lit.Value = -v
	case float64:
		lit.Value = -v
	}
	return lit, nil
}

func (p *Parser) parseInfixExpression(left ast.Expression) (ast.Expression, error) {
	switch p.curToken.Type {
	case TokenAnd, TokenOr, TokenEq, TokenNe, TokenLt, TokenGt, TokenLe, TokenGe:
		return p.parseBinaryExpression(left)
	case TokenLike:
		return p.parseLikeExpression(left, false)
	case TokenIn:
		return p.parseInExpression(left, false)
	case TokenBetween:
		return p.parseBetweenExpression(left, false)
	case TokenIs:
		return p.parseIsExpression(left)
	case TokenNot:
		return p.parseNotInfix(left)
	default:
		return left, nil
	}
}

func (p *Parser) parseBinaryExpression(left ast.Expression) (ast.Expression, error) {
	op := p.curToken.Literal
	if op == "<>" {
		op = ast.OpNe
	}
	precedence := p.getPrecedence()
	p.nextToken()

	right, err := p.parseExpression(precedence)
	if err != nil {
		return nil, err
	}

	return &ast.BinaryExpr{Left: left, Operator: op, Right: right}, nil
}

func (p *Parser) parseLikeExpression(left ast.Expression, not bool) (ast.Expression, error) {
	p.nextToken()

	pattern, err := p.parseExpression(precCompare)
	if err != nil {
		return nil, err
	}

	return &ast.LikeExpr{Expr: left, Pattern: pattern, Not: not}, nil
}

func (p *Parser) parseInExpression(left ast.Expression, not bool) (ast.Expression, error) {
	p.nextToken()

	if !p.curTokenIs(TokenLParen) {
		return nil, p.errorf("expected ( after IN")
	}
	p.nextToken()

	var values []ast.Expression
	for {
		val, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		values = append(values, val)

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}

	if !p.curTokenIs(TokenRParen) {
		return nil, p.errorf("expected ) after IN values")
	}
	p.nextToken()

	return &ast.InExpr{Expr: left, Values: values, Not: not}, nil
}

func (p *Parser) parseBetweenExpression(left ast.Expression, not bool) (ast.Expression, error) {
	p.nextToken()

	low, err := p.parseExpression(precCompare)
	if err != nil {
		return nil, err
	}

	if !p.curTokenIs(TokenAnd) {
		return nil, p.errorf("expected AND in BETWEEN expression")
	}
	p.nextToken()

	high, err := p.parseExpression(precCompare)
	if err != nil {
		return nil, err
	}

	return &ast.BetweenExpr{Expr: left, Low: low, High: high, Not: not}, nil
}

func (p *Parser) parseIsExpression(left ast.Expression) (ast.Expression, error) {
	p.nextToken()

	not := false
	if p.curTokenIs(TokenNot) {
		not = true
		p.nextToken()
	}

	if !p.curTokenIs(TokenNull) {
		return nil, p.errorf("expected NULL after IS")
	}
	p.nextToken()

	return &ast.IsNullExpr{Expr: left, Not: not}, nil
}

func (p *Parser) parseNotInfix(left ast.Expression) (ast.Expression, error) {
	p.nextToken()

	switch p.curToken.Type {
	case TokenIn:
		return p.parseInExpression(left, true)
	case TokenLike:
		return p.parseLikeExpression(left, true)
	case TokenBetween:
		return p.parseBetweenExpression(left, true)
	default:
		return nil, p.errorf("expected IN, LIKE, or BETWEEN after NOT")
	}
}
