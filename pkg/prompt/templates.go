// Package prompt holds every LLM prompt template and the builders that fill
// them. Templates are plain consts; builders are stateless functions so call
// sites stay declarative.
package prompt

// AssessorSystem is the system message for all assessment calls.
const AssessorSystem = "你是一个专业的任务评估助手。"

// needToolsTemplate classifies whether a query needs tool execution. The
// caller checks the (thinking-stripped) response for "需要"; anything else,
// including "None", means no tools.
const needToolsTemplate = `
判断用户的问题是否需要调用工具来解决。

## 可用工具列表
%s

## 用户问题
%s

## 判断标准
1. 如果问题需要获取实时数据、执行操作或查询外部系统，且可用工具能够支持，回答"需要"
2. 如果问题可以直接基于常识回答，或没有合适的工具，回答"None"

只回答"需要"或"None"，不要有任何额外解释。
`

// selectToolsTemplate filters the catalog down to the tools relevant to a
// query. The response is a JSON object with "tool" or "tools".
const selectToolsTemplate = `
你是一个工具筛选助手。根据用户的查询，从可用工具列表中筛选出解决问题可能用到的工具。

## 可用工具列表
%s

## 用户查询
%s

## 筛选要求
1. 只选择与用户查询直接相关的工具
2. 异步任务需要同时选择提交任务和查询进度的工具
3. 如果没有任何工具与查询相关，返回 {"tools": []} 或说明"无工具"

返回JSON格式:
{"tool": "工具名称"} 或 {"tools": ["工具名称1", "工具名称2"]}
`

// synthesizePlanTemplate produces the execution plan. tool_args values may
// carry [占位符] placeholders resolved later from prior step results.
const synthesizePlanTemplate = `
你是一个任务规划助手。根据用户的查询和可用工具，生成一个结构化的工具执行计划。

## 用户查询
%s

## 对话历史
%s

## 可用工具（含参数结构）
%s

## 规划要求
1. 将用户查询拆解为若干工具调用步骤，step_id 使用 step1、step2 等编号
2. 如果某个步骤的参数依赖之前步骤的结果，在 depends_on 中声明依赖，
   并可以在参数值中使用占位符：${...}引用具体步骤的结果（如 "${step1}"），
   或 [描述性占位符]（如 "[步骤1返回的任务ID]"）留待执行时解析
3. 可以并行执行且相互无依赖的步骤，标注相同的 parallel_group
4. 对于提交后需要轮询进度的异步任务，将查询步骤的 polling_required 设为 true，
   polling_interval 为轮询间隔秒数，polling_condition 描述完成条件
5. 只使用可用工具列表中的工具

返回JSON格式:
{
  "steps": [
    {
      "step_id": "step1",
      "tool_name": "工具名称",
      "tool_args": {"参数名": "参数值"},
      "description": "该步骤的目的",
      "depends_on": [],
      "parallel_group": "",
      "polling_required": false,
      "polling_interval": 5,
      "polling_condition": ""
    }
  ]
}
只返回JSON，不要有任何额外解释。
`

// resolvePlaceholdersTemplate fills [占位符] tokens in tool args using prior
// step results.
const resolvePlaceholdersTemplate = `
你需要根据之前工具的执行结果，将参数中的占位符替换为具体值。

## 用户查询
%s

## 当前参数（含占位符）
%s

## 之前工具的执行结果
%s

## 你的任务
1. 找出参数值中的 [占位符] 标记
2. 从之前工具的执行结果中提取对应的具体值（如任务ID、文件路径、查询结果等）
3. 用具体值替换占位符，其余参数保持原样

只返回替换后的完整JSON参数对象，不要有任何额外解释。
`

// nextToolTemplate asks for the next tool when the plan is exhausted. An
// empty response means the problem is solved.
const nextToolTemplate = `
你的任务是判断下一步应该执行哪个工具来解决用户的查询问题。

## 用户查询
%s

## 已执行的工具和结果
%s

## 可用工具列表
%s

## 你的任务
1. 分析用户查询和已执行的工具结果
2. 判断问题是否已解决
3. 如果问题已解决，请返回空字符串 ""
4. 如果问题未解决，请从可用工具列表中选择最合适的下一个工具名称
5. 对于异步任务（如图像生成）：
- 如果任务提交成功但尚未完成，应继续查询任务进度
- 直到任务真正完成，才能判断问题已解决
6. 支持调用同一个工具多次

只返回工具名称或空字符串，不要有任何额外解释。
`

// setParametersTemplate generates args for a selector-chosen tool.
const setParametersTemplate = `
你需要为工具 "%s" 设置合适的参数。

## 工具描述
%s

## 工具参数结构
%s

## 用户查询
%s
%s
## 你的任务
1. 分析用户查询的意图
2. 理解工具的参数结构
3. 为该工具生成合适的参数值
4. 以JSON格式返回参数，不要有任何额外的解释

只返回一个有效的JSON对象，包含所有必要的参数。
`

// confirmPollingTemplate is the secondary confirmation when the final-state
// assessment says no more tools but the problem looks unsolved.
const confirmPollingTemplate = `
请分析以下工具执行结果，确认是否需要继续轮询任务状态:

用户查询: %s
工具执行历史:
%s

特别关注以下情况:
1. 如果有任何异步任务(如图像生成、文件处理等)正在进行中
2. 如果结果中包含"任务ID"、"进度"、"生成中"等表示未完成的状态
3. 如果用户问题明显未解决，但还需要继续查询结果
4. 如果工具执行失败,请设置continue_polling为False,suggested_tool为None

只返回JSON格式:
{
    "continue_polling": boolean,
    "reason": "简要说明理由",
    "suggested_tool": "建议使用的工具名称(如有)"
}
`

// retryToolNameTemplate re-asks for a concrete tool name after the selector
// said more tools are needed but named none.
const retryToolNameTemplate = `
你需要为继续解决用户问题选择最合适的工具。

用户查询: %s

已执行的工具和结果:
%s

可用工具列表:
%s

系统分析表明用户问题尚未解决，需要继续使用工具。
请选择一个最合适的工具来继续处理，尤其是检查任务进度或获取任务结果的工具。
只返回工具名称，不要添加任何解释。
`

// pollingJudgeTemplate asks whether a polled async task has finished. Used
// only when the step declares no polling_condition hint.
const pollingJudgeTemplate = `
判断以下异步任务是否已经完成:

步骤ID: %s
工具名称: %s
当前轮询次数: %d
最新执行结果:
%s

如果结果表明任务已经完成（如生成完毕、处理结束、进度100%%），回答"已完成"；
否则回答"未完成"。只回答"已完成"或"未完成"，不要有任何额外解释。
`

// taskCompletionTemplate is assessment stage 1: a coarse completion check.
const taskCompletionTemplate = `
请评估当前任务是否已经完成：

工具名称: %s
执行结果: %s
是否出错: %v
已执行工具: %s
用户查询: %s

请基于以下角度判断：
1. 此工具执行是否成功
2. 当前工具解决了用户问题的哪些部分
3. 结合已执行工具，是否还需要其他工具

返回JSON格式：
{
    "is_complete": boolean,
    "reason": "判断理由",
    "next_step": "建议下一步操作"
}
`

// assessTemplate is assessment stage 2: the structured-text evaluation the
// regex parser consumes.
const assessTemplate = `
## 评估任务
请根据工具执行情况和历史记录，判断用户问题是否已完全解决。

## 用户原始问题
%s

## 已执行工具历史
%s

## 当前工具执行详情
工具名称: %s
输入参数: %s
执行结果: %s
执行状态: %s

## 评估标准
1. 对比工具参数与用户需求，判断参数是否准确匹配需求
2. 分析工具结果是否完整解决了对应子任务
3. 综合已执行工具历史，判断是否还有需要调用工具的子任务
4. 置信度仅基于参数与结果的匹配程度（0.7-1.0）

## 重要判断规则
- 分析未完成任务的性质:
  - 如果是"数据获取类"任务（如搜索、查询、计算等），则需要调用工具
  - 如果是"总结、分析、建议类"任务（如总结信息、给建议、做推荐等），则无需调用工具
  - 基于工具结果进行解释和回答的任务，无需再调用其他工具

## 输出要求
工具结果评估: [完全解决/部分解决/未解决]
参数匹配度: [0.7-1.0]
原因分析: [简明说明评估依据]
是否需要其他工具: [是/否]
   - 判断依据:
     1. 若还有需要获取数据的子任务未完成，则需要其他工具（是）
     2. 若仅剩分析总结类任务（如建议、推荐、解释已获取数据），则不需要其他工具（否）

%s
%s
`

// postProcessingTemplate is assessment stage 3: JSON corrections merged over
// the parsed assessment.
const postProcessingTemplate = `
请对评估结果进行后处理校正：

当前评估结果: %s
工具名称: %s
执行结果: %s
是否出错: %v
已执行工具: %s
用户查询: %s

后处理规则：
1. 检查评估结果是否合理
2. 特别注意是否只剩下总结、建议类任务
3. 验证置信度是否合理
4. 确认是否需要更多工具
5. 对于异步任务（任务提交、进度查询等）：
   - 如果结果包含"任务ID"、"进度"、"生成中"等字样
   - 必须设置need_more_tools为true，以确保任务完成
6. 如果置信结果返回的相关的url信息(图像、文件、视频、音频等)，请设置confidence为更高值，除非还有继续的工具执行
7. satisfaction_level的值根据当前工具的执行结果，是否满足用户的需求来判断
8. 如果之前执行的工具返回了错误的结果，请设置need_more_tools为false

返回JSON格式（只返回需要修改的字段）：
{
    "satisfied": boolean,
    "satisfaction_level": "满足全部需求/满足部分需求/不满足需求",
    "need_more_tools": boolean,
    "problem_solved": boolean,
    "final_confidence": 0.0-1.0,
    "confidence": 0.0-1.0,
    "next_tool_suggestion": "建议的下一个工具"
}
`

// taskTypeAnalysisTemplate is assessment stage 4: whether only summary-style
// work remains.
const taskTypeAnalysisTemplate = `
分析剩余任务的类型：

用户查询: %s
工具名称: %s
执行结果: %s
评估原因: %s

请判断剩余任务是否仅包含总结、建议、分析类任务。

返回JSON格式：
{
    "only_summary": boolean,
    "has_action_task": boolean,
    "task_types": ["任务类型列表"],
    "analysis": "分析结果"
}
`

// finalStateTemplate judges the whole plan once the scheduler terminates.
const finalStateTemplate = `
综合评估所有工具执行结果，判断用户问题是否已得到解决：

用户原始问题: %s
所有工具执行结果:
%s

## 特别注意异步任务处理
1. 对于图像生成、文件处理等异步任务：
   - 如果结果中包含"任务ID"、"进度"、"生成中"等关键词
   - 如果最后一个工具的结果显示任务尚未完成
   - 如果需要继续等待或查询结果
   这些情况下，必须将need_more_tools设为true

2. 只有在以下情况才能将need_more_tools设为false：
   - 问题已完全解决
   - 确认没有任何工具可以继续推进解决方案
   - 工具执行出错且无法恢复

请进行综合分析并返回JSON格式：
{
    "problem_solved": boolean,
    "solution_level": "已解决/部分解决/未解决",
    "confidence": 0.0-1.0,
    "reason": "详细原因",
    "need_more_tools": boolean,
    "generate_final": boolean,
    "remaining_tasks": ["剩余任务列表"],
    "analysis": "综合分析结果"
}
`

// finalAnswerTemplate generates the user-facing answer from all step
// results.
const finalAnswerTemplate = `
你是一个负责生成最终回答的助手。基于以下工具执行结果，回答用户的问题。

## 用户原始问题
%s

## 对话历史
%s

## 所有工具执行结果
%s

## 回答要求
1. 如果最后一个工具的结果已经完整解决了用户问题，优先直接使用该结果的内容作答
2. 回答只能基于工具执行结果中的信息，严禁编造工具结果中不存在的内容
3. 如果工具结果不足以回答问题，如实说明已获取的信息和缺失的部分
4. 如果用户请求或工具结果涉及危险、违法或不当内容，回答"抱歉，我无法提供该内容。"
5. 用清晰自然的语言组织回答，不要提及工具调用的内部细节
`

// withoutToolsTemplate answers directly but lets the model mention what
// tools exist.
const withoutToolsTemplate = `你有如下工具可以调用:%s，请回答用户的问题`

// toolTestTemplate drives one function-calling round against a single tool.
const toolTestTemplate = `
你是一个工具测试助手。请调用工具 "%s" 进行测试。

测试参数:
%s

请直接使用上述参数调用该工具。如果参数不完整，根据工具的参数结构补全合理的测试值。
`
