package codegen

import (
	"fmt"
	"sort"

	"cool-codegen/ast"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// generateIfExpression merges the arms through a stack slot rather than a
// phi, so arms may span any number of blocks.
func (cg *CodeGenerator) generateIfExpression(ifExpr *ast.IfExpression) (value.Value, error) {
	cond, err := cg.generateExpression(ifExpr.Condition)
	if err != nil {
		return nil, fmt.Errorf("error generating condition: %w", err)
	}
	cond = cg.conform(cond, types.I1)

	resultType := cg.ctx.valueType(ifExpr.ExprType())
	merge := cg.newLocal("if.result", ifExpr.ExprType(), resultType)

	label := cg.env.NewLabel("if")
	thenBlock := cg.currentFunc.NewBlock(label + ".then")
	elseBlock := cg.currentFunc.NewBlock(label + ".else")
	mergeBlock := cg.currentFunc.NewBlock(label + ".merge")
	cg.currentBlock.NewCondBr(cond, thenBlock, elseBlock)

	arms := []struct {
		block *ir.Block
		expr  ast.Expression
		what  string
	}{
		{thenBlock, ifExpr.Consequence, "then"},
		{elseBlock, ifExpr.Alternative, "else"},
	}
	for _, arm := range arms {
		cg.currentBlock = arm.block
		v, err := cg.generateExpression(arm.expr)
		if err != nil {
			return nil, fmt.Errorf("error generating %s branch: %w", arm.what, err)
		}
		cg.currentBlock.NewStore(cg.conform(v, resultType), merge.Addr)
		cg.currentBlock.NewBr(mergeBlock)
	}

	cg.currentBlock = mergeBlock
	return mergeBlock.NewLoad(resultType, merge.Addr), nil
}

// generateWhileExpression checks the predicate before every iteration. The
// loop's value is always void.
func (cg *CodeGenerator) generateWhileExpression(whileExpr *ast.WhileExpression) (value.Value, error) {
	label := cg.env.NewLabel("while")
	loopBlock := cg.currentFunc.NewBlock(label + ".loop")
	bodyBlock := cg.currentFunc.NewBlock(label + ".body")
	endBlock := cg.currentFunc.NewBlock(label + ".end")

	cg.currentBlock.NewBr(loopBlock)
	cg.currentBlock = loopBlock
	cond, err := cg.generateExpression(whileExpr.Condition)
	if err != nil {
		return nil, fmt.Errorf("error generating loop condition: %w", err)
	}
	cg.currentBlock.NewCondBr(cg.conform(cond, types.I1), bodyBlock, endBlock)

	cg.currentBlock = bodyBlock
	if _, err := cg.generateExpression(whileExpr.Body); err != nil {
		return nil, fmt.Errorf("error generating loop body: %w", err)
	}
	cg.currentBlock.NewBr(loopBlock)

	cg.currentBlock = endBlock
	return constant.NewNull(cg.ctx.objPtr), nil
}

func (cg *CodeGenerator) generateBlockExpression(block *ast.BlockExpression) (value.Value, error) {
	if len(block.Expressions) == 0 {
		return nil, cg.faultf("empty block")
	}
	var last value.Value
	for i, expr := range block.Expressions {
		v, err := cg.generateExpression(expr)
		if err != nil {
			return nil, fmt.Errorf("error generating expression %d in block: %w", i+1, err)
		}
		last = v
	}
	return last, nil
}

// generateLetExpression binds left to right. Each initializer sees the
// bindings before it but not its own.
func (cg *CodeGenerator) generateLetExpression(let *ast.LetExpression) (value.Value, error) {
	for _, b := range let.Bindings {
		typeName := b.Type.Value
		loc := cg.newLocal(b.Identifier.Value, typeName, cg.ctx.valueType(typeName))

		var init value.Value
		if b.Init != nil {
			v, err := cg.generateExpression(b.Init)
			if err != nil {
				return nil, fmt.Errorf("error generating initializer of %s: %w", b.Identifier.Value, err)
			}
			init = cg.conform(v, loc.Type)
		} else {
			init = cg.conform(cg.defaultValue(typeName), loc.Type)
		}
		cg.currentBlock.NewStore(init, loc.Addr)
		cg.env.Bind(b.Identifier.Value, loc)
	}

	body, err := cg.generateExpression(let.In)
	for range let.Bindings {
		cg.env.Unbind()
	}
	if err != nil {
		return nil, fmt.Errorf("error generating let body: %w", err)
	}
	return body, nil
}

type caseArm struct {
	branch *ast.CaseBranch
	class  *ClassNode
}

// orderCaseBranches puts deeper classes first. Equal depths keep source
// order; two classes at the same depth have disjoint tag ranges, so at most
// one of them can match.
func (cg *CodeGenerator) orderCaseBranches(branches []*ast.CaseBranch) ([]caseArm, error) {
	arms := make([]caseArm, 0, len(branches))
	for _, b := range branches {
		class, ok := cg.ctx.Classes.Lookup(b.Type.Value)
		if !ok {
			return nil, cg.faultf("case branch on undefined class %s", b.Type.Value)
		}
		arms = append(arms, caseArm{branch: b, class: class})
	}
	sort.SliceStable(arms, func(i, j int) bool {
		return arms[i].class.Depth > arms[j].class.Depth
	})
	return arms, nil
}

// generateCaseExpression tests the scrutinee's tag against each branch's
// subtree range, most specific branch first.
func (cg *CodeGenerator) generateCaseExpression(caseExpr *ast.CaseExpression) (value.Value, error) {
	scrutinee, err := cg.generateExpression(caseExpr.Expr)
	if err != nil {
		return nil, fmt.Errorf("error generating case scrutinee: %w", err)
	}
	ref := cg.conform(scrutinee, cg.ctx.objPtr)
	cg.guardVoid(ref, "case on void")

	arms, err := cg.orderCaseBranches(caseExpr.Branches)
	if err != nil {
		return nil, err
	}

	tag := cg.tagOf(ref)
	resultType := cg.ctx.valueType(caseExpr.ExprType())
	merge := cg.newLocal("case.result", caseExpr.ExprType(), resultType)

	label := cg.env.NewLabel("case")
	mergeBlock := cg.currentFunc.NewBlock(label + ".merge")

	for i, arm := range arms {
		bodyBlock := cg.currentFunc.NewBlock(fmt.Sprintf("%s.branch.%d", label, i))
		nextBlock := cg.currentFunc.NewBlock(fmt.Sprintf("%s.next.%d", label, i))

		lo := cg.currentBlock.NewICmp(enum.IPredSGE, tag, constant.NewInt(types.I32, int64(arm.class.Tag)))
		hi := cg.currentBlock.NewICmp(enum.IPredSLE, tag, constant.NewInt(types.I32, int64(arm.class.MaxChildTag)))
		cg.currentBlock.NewCondBr(cg.currentBlock.NewAnd(lo, hi), bodyBlock, nextBlock)

		cg.currentBlock = bodyBlock
		typeName := arm.branch.Type.Value
		loc := cg.newLocal(arm.branch.Pattern.Value, typeName, cg.ctx.valueType(typeName))
		cg.currentBlock.NewStore(cg.conform(ref, loc.Type), loc.Addr)
		cg.env.Bind(arm.branch.Pattern.Value, loc)
		v, err := cg.generateExpression(arm.branch.Expression)
		cg.env.Unbind()
		if err != nil {
			return nil, fmt.Errorf("error generating case branch %s: %w", typeName, err)
		}
		cg.currentBlock.NewStore(cg.conform(v, resultType), merge.Addr)
		cg.currentBlock.NewBr(mergeBlock)

		cg.currentBlock = nextBlock
	}
	cg.emitAbort(cg.currentBlock, cg.where()+": no case branch matched\n")

	cg.currentBlock = mergeBlock
	return mergeBlock.NewLoad(resultType, merge.Addr), nil
}
